package acs

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

const Name = "acs"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.acscourier.net"
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
	return fmt.Sprintf("https://www.acscourier.net/el/track-and-trace?generalCode=%s", trackingID)
}

type acsResp struct {
	Items []struct {
		IsDelivered            bool   `json:"isDelivered"`
		DeliveryDate           string `json:"deliveryDate"`
		DestinationDescription string `json:"destinationDescription"`
		PickupDate             string `json:"pickupDate"`
		PickupDescription      string `json:"pickupDescription"`
		StatusHistory          []struct {
			ControlPointDate string `json:"controlPointDate"`
			Description      string `json:"description"`
			ControlPoint     string `json:"controlPoint"`
		} `json:"statusHistory"`
	} `json:"items"`
}

func (c *Client) FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error) {
	u := fmt.Sprintf("%s/api/parcels/search/%s", c.baseURL, trackingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	// ACS отвечает 400 на неизвестный номер.
	if resp.StatusCode == http.StatusBadRequest {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return models.StatusSnapshot{}, errors.Errorf("acs http %d", resp.StatusCode)
	}

	var r acsResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "decode")
	}
	// Неизвестный номер — это всегда 400; пустой items в 2xx — поломанный ответ.
	if len(r.Items) == 0 {
		return models.StatusSnapshot{}, errors.New("acs: empty items")
	}
	p := r.Items[0]

	if p.IsDelivered {
		ts, err := parseACSTime(p.DeliveryDate)
		if err != nil {
			return models.StatusSnapshot{}, err
		}
		return models.StatusSnapshot{
			Location:    p.DestinationDescription,
			Description: "Παράδοση",
			Timestamp:   ts,
			Delivered:   true,
		}, nil
	}

	if len(p.StatusHistory) == 0 {
		// Ещё не было сканирований: посылка зарегистрирована, ждёт παραλαβή.
		ts, err := parseACSTime(p.PickupDate)
		if err != nil {
			return models.StatusSnapshot{}, err
		}
		return models.StatusSnapshot{
			Location:    p.PickupDescription,
			Description: "Προς Παραλαβή",
			Timestamp:   ts,
		}, nil
	}

	last := p.StatusHistory[len(p.StatusHistory)-1]
	ts, err := parseACSTime(last.ControlPointDate)
	if err != nil {
		return models.StatusSnapshot{}, err
	}
	return models.StatusSnapshot{
		Location:    last.ControlPoint,
		Description: last.Description,
		Timestamp:   ts,
	}, nil
}

var acsLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseACSTime(s string) (time.Time, error) {
	for _, l := range acsLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("acs: unparseable date %q", s)
}
