package couriercenter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const Name = "couriercenter"

// Терминальный маркер в блоке статуса.
const deliveredMarker = "(29) DeliveryCompleted"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://www.courier.gr"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 8 * time.Second,
		},
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) TrackingURL(trackingID string) string {
	return fmt.Sprintf("https://courier.gr/track/result?tracknr=%s", trackingID)
}

func (c *Client) FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error) {
	form := url.Values{"tracknr": {trackingID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/track/result/", strings.NewReader(form.Encode()))
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return models.StatusSnapshot{}, errors.Errorf("couriercenter http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "parse html")
	}

	if doc.Find("h4.error").Length() > 0 {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}

	table := doc.Find("div.track-table")
	if table.Length() == 0 {
		return models.StatusSnapshot{}, errors.New("couriercenter: track table not found")
	}
	last := table.Children().First()

	rawDate := strings.TrimSpace(last.Find("div#date").Text())
	rawTime := strings.TrimSpace(last.Find("div#time").Text())
	description := strings.TrimSpace(last.Find("div#action").Text())
	location := strings.TrimSpace(last.Find("div#area").Text())
	if description == "" {
		return models.StatusSnapshot{}, errors.New("couriercenter: empty status row")
	}

	ts, err := parseTime(rawDate, rawTime)
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	return models.StatusSnapshot{
		Location:    location,
		Description: description,
		Timestamp:   ts,
		Delivered:   strings.Contains(doc.Find("div.status").Text(), deliveredMarker),
	}, nil
}

func parseTime(date, clock string) (time.Time, error) {
	s := strings.TrimSpace(date + " " + clock)
	for _, l := range []string{"02/01/2006 15:04", "2/1/2006 15:04", "02-01-2006 15:04", "02/01/2006"} {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("couriercenter: unparseable date %q", s)
}
