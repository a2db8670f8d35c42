package speedex

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

const Name = "speedex"

const deliveredStatus = "Η ΑΠΟΣΤΟΛΗ ΠΑΡΑΔΟΘΗΚΕ"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://www.speedex.gr"
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
	return fmt.Sprintf("http://www.speedex.gr/isapohi.asp?voucher_code=%s&searcggo=Submit", trackingID)
}

func (c *Client) FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error) {
	u := fmt.Sprintf("%s/speedex/NewTrackAndTrace.aspx?number=%s", c.baseURL, trackingID)
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
		return models.StatusSnapshot{}, errors.Errorf("speedex http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "parse html")
	}

	timeline := doc.Find("section#timeline")
	if timeline.Length() == 0 {
		return models.StatusSnapshot{}, errors.New("speedex: timeline section not found")
	}
	if strings.Contains(timeline.Text(), "Δεν βρέθηκαν αποτελέσματα.") {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}

	// Доставленная посылка показывается отдельной карточкой над таймлайном.
	if strings.Contains(timeline.Text(), deliveredStatus) {
		card := timeline.Find("div.card-header.delivered-speedex")
		location, ts, err := splitLocationDate(card.Find("span.font-small-3").First().Text())
		if err != nil {
			return models.StatusSnapshot{}, err
		}
		return models.StatusSnapshot{
			Location:    location,
			Description: deliveredStatus,
			Timestamp:   ts,
			Delivered:   true,
		}, nil
	}

	items := timeline.Find("li.timeline-item")
	if items.Length() == 0 {
		return models.StatusSnapshot{}, errors.New("speedex: no timeline items")
	}
	last := items.Last()

	description := strings.TrimSpace(last.Find("h4.card-title").Text())
	location, ts, err := splitLocationDate(last.Find("span.font-small-3").First().Text())
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	return models.StatusSnapshot{
		Location:    location,
		Description: description,
		Timestamp:   ts,
	}, nil
}

// Строка вида "ΑΘΗΝΑ, 02/01/2006 15:04".
func splitLocationDate(s string) (string, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ", ", 2)
	if len(parts) != 2 {
		return "", time.Time{}, errors.Errorf("speedex: unexpected location/date %q", s)
	}
	for _, l := range []string{"02/01/2006 15:04", "02/01/2006 στις 15:04", "02/01/2006"} {
		if t, err := time.Parse(l, strings.TrimSpace(parts[1])); err == nil {
			return strings.TrimSpace(parts[0]), t.UTC(), nil
		}
	}
	return "", time.Time{}, errors.Errorf("speedex: unparseable date %q", parts[1])
}
