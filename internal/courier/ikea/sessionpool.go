package ikea

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/pkg/errors"
)

// Браузерная сессия дорогая, поэтому держим их ограниченный пул с
// acquire/release вместо busy-флагов. Сессия, накопившая ошибки,
// закрывается и пересоздаётся при следующем acquire.
type session struct {
	browser *rod.Browser
	fails   int
}

type sessionPool struct {
	controlURL string
	slots      chan *session
	maxFails   int
}

func newSessionPool(controlURL string, size int) *sessionPool {
	if size <= 0 {
		size = 1
	}
	p := &sessionPool{
		controlURL: controlURL,
		slots:      make(chan *session, size),
		maxFails:   3,
	}
	// Слоты заполняем пустыми, браузер поднимается лениво при первом acquire.
	for i := 0; i < size; i++ {
		p.slots <- nil
	}
	return p
}

func (p *sessionPool) acquire(ctx context.Context) (*session, error) {
	select {
	case s := <-p.slots:
		if s != nil {
			return s, nil
		}
		s, err := p.dial()
		if err != nil {
			// Слот возвращаем, иначе пул навсегда обеднеет.
			p.slots <- nil
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "acquire browser session")
	}
}

func (p *sessionPool) release(s *session, failed bool) {
	if failed {
		s.fails++
		if s.fails >= p.maxFails {
			_ = s.browser.Close()
			p.slots <- nil
			return
		}
	} else {
		s.fails = 0
	}
	p.slots <- s
}

func (p *sessionPool) dial() (*session, error) {
	u := p.controlURL
	if u == "" {
		var err error
		u, err = launcher.New().Headless(true).NoSandbox(true).Launch()
		if err != nil {
			return nil, errors.Wrap(err, "launch browser")
		}
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, errors.Wrap(err, "connect browser")
	}
	return &session{browser: b}, nil
}

func (p *sessionPool) Close() {
	for i := 0; i < cap(p.slots); i++ {
		if s := <-p.slots; s != nil {
			_ = s.browser.Close()
		}
	}
}
