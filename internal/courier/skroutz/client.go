package skroutz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/pkg/errors"
)

const Name = "skroutz"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.sendx.gr"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) TrackingURL(trackingID string) string {
	return fmt.Sprintf("https://www.skroutzlastmile.gr/#%s", trackingID)
}

type sendxResp struct {
	DeliveredAt     *string `json:"deliveredAt"`
	TrackingDetails []struct {
		CreatedAt   string `json:"createdAt"`
		Description string `json:"description"`
		Driver      struct {
			City string `json:"city"`
		} `json:"driver"`
	} `json:"trackingDetails"`
}

func (c *Client) FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error) {
	u := fmt.Sprintf("%s/user/hp/%s", c.baseURL, trackingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return models.StatusSnapshot{}, errors.Errorf("sendx http %d", resp.StatusCode)
	}

	var r sendxResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "decode")
	}
	if len(r.TrackingDetails) == 0 {
		return models.StatusSnapshot{}, errors.New("sendx: empty tracking details")
	}

	last := r.TrackingDetails[len(r.TrackingDetails)-1]
	ts, err := time.Parse(time.RFC3339, last.CreatedAt)
	if err != nil {
		// Часть ответов приходит без зоны.
		ts, err = time.Parse("2006-01-02T15:04:05", last.CreatedAt)
		if err != nil {
			return models.StatusSnapshot{}, errors.Errorf("sendx: unparseable date %q", last.CreatedAt)
		}
	}

	return models.StatusSnapshot{
		Location:    last.Driver.City,
		Description: last.Description,
		Timestamp:   ts.UTC(),
		Delivered:   r.DeliveredAt != nil,
	}, nil
}
