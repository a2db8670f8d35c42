package elta

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

const Name = "elta"

const deliveredStatus = "ΑΠΟΣΤΟΛΗ ΠΑΡΑΔΟΘΗΚΕ"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://itemsearch.elta.gr"
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
	return fmt.Sprintf("https://itemsearch.elta.gr/Query/Direct/%s", trackingID)
}

func (c *Client) FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error) {
	u := fmt.Sprintf("%s/Query/Direct/%s", c.baseURL, trackingID)
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
		return models.StatusSnapshot{}, errors.Errorf("elta http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "parse html")
	}

	// Страница отдаёт 200 и для неизвестных номеров, отличаем по тексту.
	if strings.Contains(doc.Text(), "Ιστορικό Μη Διαθέσιμο") {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}

	// Первая строка таблицы истории — самое свежее событие.
	row := doc.Find("tbody tr").First()
	cells := row.Find("td")
	if cells.Length() < 3 {
		return models.StatusSnapshot{}, errors.New("elta: history table not found")
	}

	rawDate := strings.TrimSpace(cells.Eq(0).Text())
	description := strings.TrimSpace(cells.Eq(1).Text())
	location := strings.TrimSpace(cells.Eq(2).Text())

	ts, err := parseEltaTime(rawDate)
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	return models.StatusSnapshot{
		Location:    location,
		Description: description,
		Timestamp:   ts,
		Delivered:   strings.EqualFold(description, deliveredStatus),
	}, nil
}

var eltaLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

func parseEltaTime(s string) (time.Time, error) {
	for _, l := range eltaLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("elta: unparseable date %q", s)
}
