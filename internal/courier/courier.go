package courier

import (
	"context"
	"net"
	"time"

	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/pkg/errors"
)

// ErrNotFound — источник явно ответил, что такой номер ему неизвестен.
// Любая другая ошибка (сеть, таймаут, неожиданная разметка) — transient:
// её нельзя путать с NotFound, иначе посылка молча выпадет из отслеживания.
var ErrNotFound = errors.New("tracking id not found")

type Client interface {
	Name() string
	// TrackingURL — публичная страница отслеживания для ссылки в уведомлении.
	TrackingURL(trackingID string) string
	FetchStatus(ctx context.Context, trackingID string) (models.StatusSnapshot, error)
}

// FetchWithRetry делает fetch с максимум одним немедленным повтором при таймауте.
func FetchWithRetry(ctx context.Context, c Client, trackingID string) (models.StatusSnapshot, error) {
	snap, err := c.FetchStatus(ctx, trackingID)
	if err == nil || !isTimeout(err) {
		return snap, err
	}
	return c.FetchStatus(ctx, trackingID)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Registry — имя курьера -> адаптер. Заполняется при старте, дальше только чтение.
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	m := make(map[string]Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &Registry{clients: m}
}

func (r *Registry) Get(name string) (Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	return out
}

// DefaultTimeout — базовый таймаут запроса к источнику, если адаптер не задал свой.
const DefaultTimeout = 5 * time.Second
