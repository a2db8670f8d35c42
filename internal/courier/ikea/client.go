package ikea

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
)

const Name = "ikea"

// Страница заказа рендерится скриптами, обычным GET её не прочитать —
// ходим через headless-браузер.
type Client struct {
	baseURL string
	pool    *sessionPool
	timeout time.Duration
}

func New(baseURL, browserURL string, poolSize int) *Client {
	if baseURL == "" {
		baseURL = "https://www.ikea.gr"
	}
	return &Client{
		baseURL: baseURL,
		pool:    newSessionPool(browserURL, poolSize),
		timeout: 15 * time.Second,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) TrackingURL(trackingID string) string {
	return fmt.Sprintf("https://www.ikea.gr/poreia-paraggelias/?OrderNumber=%s", trackingID)
}

func (c *Client) Close() { c.pool.Close() }

func (c *Client) FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s, err := c.pool.acquire(ctx)
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	snap, err := c.fetchWithSession(ctx, s, trackingID)
	c.pool.release(s, err != nil && !errors.Is(err, courier.ErrNotFound))
	return snap, err
}

func (c *Client) fetchWithSession(ctx context.Context, s *session, trackingID string) (models.StatusSnapshot, error) {
	u := fmt.Sprintf("%s/poreia-paraggelias/?OrderNumber=%s", c.baseURL, trackingID)

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: u})
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "open page")
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.WaitLoad(); err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "wait load")
	}

	if has, _, err := page.Has("div.error"); err == nil && has {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}

	success, err := page.Element("div.orderTrack__elm--success")
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "order track not rendered")
	}
	complete, err := page.Elements("div.orderTrack__elm--complete")
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "list checkpoints")
	}

	// Четыре пройденных этапа заказа = доставлено.
	delivered := 1+len(complete) == 4

	current := success
	if len(complete) > 0 {
		current = complete[len(complete)-1]
	}

	description, err := elementText(current, "div.orderTrack__text")
	if err != nil {
		return models.StatusSnapshot{}, err
	}
	rawDate, _ := elementText(current, "div.orderTrack__text__date")

	return models.StatusSnapshot{
		Description: description,
		Timestamp:   parseIkeaTime(rawDate),
		Delivered:   delivered,
	}, nil
}

func elementText(el *rod.Element, selector string) (string, error) {
	child, err := el.Element(selector)
	if err != nil {
		return "", errors.Wrapf(err, "element %s", selector)
	}
	t, err := child.Text()
	if err != nil {
		return "", errors.Wrapf(err, "text %s", selector)
	}
	return strings.Join(strings.Fields(t), " "), nil
}

// У части этапов даты нет вовсе, это не ошибка разметки.
func parseIkeaTime(s string) time.Time {
	for _, l := range []string{"02/01/2006 15:04", "02/01/2006", "2/1/2006"} {
		if t, err := time.Parse(l, strings.TrimSpace(s)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
