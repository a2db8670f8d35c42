package delatolas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/pkg/errors"
)

const Name = "delatolas"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://docuclass.delatolas.com"
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
	return fmt.Sprintf("https://docuclass.delatolas.com/tnt_temp.php?id=%s", trackingID)
}

type historyEntry struct {
	HDate   string `json:"h_date"`
	HStatus string `json:"h_status"`
}

type statusMessage struct {
	Selected bool `json:"selected"`
}

func (c *Client) FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error) {
	form := url.Values{
		"cmd":      {"getstatusnew"},
		"orderid":  {trackingID},
		"language": {"el"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/js/code/epod/track_and_trace/tnt_server.php", strings.NewReader(form.Encode()))
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
		return models.StatusSnapshot{}, errors.Errorf("delatolas http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "read body")
	}

	return parseResponse(body)
}

// Сервер отдаёт почти-JSON: одинарные кавычки и ключи h_date/h_status без кавычек.
// Чиним текст и дальше читаем как обычный JSON.
func parseResponse(body []byte) (models.StatusSnapshot, error) {
	s := strings.ReplaceAll(string(body), "'", `"`)
	s = strings.ReplaceAll(s, "h_date", `"h_date"`)
	s = strings.ReplaceAll(s, "h_status", `"h_status"`)

	var top []json.RawMessage
	if err := json.Unmarshal([]byte(s), &top); err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "decode envelope")
	}
	if len(top) < 3 {
		return models.StatusSnapshot{}, errors.New("delatolas: short envelope")
	}

	var payload []json.RawMessage
	if err := json.Unmarshal(top[2], &payload); err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "decode payload")
	}
	if len(payload) < 5 {
		return models.StatusSnapshot{}, errors.New("delatolas: short payload")
	}

	var found int
	if err := json.Unmarshal(payload[0], &found); err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "decode status flag")
	}
	if found == 0 {
		return models.StatusSnapshot{}, courier.ErrNotFound
	}

	var history []historyEntry
	if err := json.Unmarshal(payload[3], &history); err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "decode history")
	}
	if len(history) == 0 {
		return models.StatusSnapshot{}, errors.New("delatolas: empty history")
	}

	var msgs []statusMessage
	if err := json.Unmarshal(payload[4], &msgs); err != nil {
		return models.StatusSnapshot{}, errors.Wrap(err, "decode status messages")
	}

	last := history[len(history)-1]
	ts, err := parseTime(last.HDate)
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	delivered := len(msgs) > 0 && msgs[len(msgs)-1].Selected

	return models.StatusSnapshot{
		Description: last.HStatus,
		Timestamp:   ts,
		Delivered:   delivered,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	for _, l := range []string{"02/01/2006 15:04", "02-01-2006 15:04", "02/01/2006", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(l, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("delatolas: unparseable date %q", s)
}
