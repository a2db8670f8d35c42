package geniki

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const Name = "geniki"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://www.taxydromiki.com"
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
	return fmt.Sprintf("https://www.taxydromiki.com/en/track/%s", trackingID)
}

func (c *Client) FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error) {
	u := fmt.Sprintf("%s/en/track/%s", c.baseURL, trackingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return models.StatusSnapshot{}, errors.Errorf("geniki http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "parse html")
	}

	if doc.Find("div.empty-text").Length() > 0 {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}

	checkpoints := doc.Find("div.tracking-checkpoint")
	if checkpoints.Length() == 0 {
		return models.StatusSnapshot{}, errors.New("geniki: no checkpoints on page")
	}
	last := checkpoints.Last()

	rawDate := strings.TrimSpace(last.Find("div.checkpoint-date").Text())
	rawTime := strings.TrimSpace(last.Find("div.checkpoint-time").Text())
	description := strings.TrimSpace(last.Find("div.checkpoint-status").Text())

	// У финального чекпоинта "Delivered" нет локации — берём её с предыдущего.
	locNode := last.Find("div.checkpoint-location")
	delivered := locNode.Length() == 0
	location := strings.TrimSpace(locNode.Text())
	if delivered && checkpoints.Length() > 1 {
		location = strings.TrimSpace(checkpoints.Eq(checkpoints.Length() - 2).Find("div.checkpoint-location").Text())
	}

	ts, err := parseGenikiTime(rawDate, rawTime)
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	return models.StatusSnapshot{
		Location:    location,
		Description: description,
		Timestamp:   ts,
		Delivered:   delivered,
	}, nil
}

// Дата на странице вида "Monday, 02/01/2006", время "15:04".
func parseGenikiTime(date, clock string) (time.Time, error) {
	if i := strings.Index(date, ", "); i >= 0 {
		date = date[i+2:]
	}
	for _, l := range []string{"02/01/2006 15:04", "02/01/2006"} {
		s := strings.TrimSpace(date + " " + clock)
		if clock == "" {
			s = date
		}
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("geniki: unparseable date %q %q", date, clock)
}
