package courierset

import (
	"github.com/ParcelPing/ParcelPing/config"
	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/courier/acs"
	"github.com/ParcelPing/ParcelPing/internal/courier/couriercenter"
	"github.com/ParcelPing/ParcelPing/internal/courier/delatolas"
	"github.com/ParcelPing/ParcelPing/internal/courier/elta"
	"github.com/ParcelPing/ParcelPing/internal/courier/geniki"
	"github.com/ParcelPing/ParcelPing/internal/courier/ikea"
	"github.com/ParcelPing/ParcelPing/internal/courier/skroutz"
	"github.com/ParcelPing/ParcelPing/internal/courier/speedex"
)

// BuildRegistry собирает адаптеры всех поддерживаемых курьеров.
// base_url в конфиге нужен для тестов и проксирования; пустой — боевой адрес.
func BuildRegistry(cfg *config.Config) *courier.Registry {
	baseURL := func(name string) string {
		return cfg.ParcelPing.Couriers[name].BaseURL
	}
	disabled := func(name string) bool {
		return cfg.ParcelPing.Couriers[name].Disabled
	}

	var clients []courier.Client
	add := func(name string, c courier.Client) {
		if disabled(name) {
			return
		}
		clients = append(clients, c)
	}

	add("acs", acs.New(baseURL("acs")))
	add("skroutz", skroutz.New(baseURL("skroutz")))
	add("elta", elta.New(baseURL("elta")))
	add("geniki", geniki.New(baseURL("geniki")))
	add("speedex", speedex.New(baseURL("speedex")))
	add("couriercenter", couriercenter.New(baseURL("couriercenter")))
	add("delatolas", delatolas.New(baseURL("delatolas")))

	if !disabled("ikea") {
		poolSize := cfg.ParcelPing.IkeaBrowserPoolSize
		if poolSize <= 0 {
			poolSize = 1
		}
		clients = append(clients, ikea.New(baseURL("ikea"), cfg.ParcelPing.IkeaBrowserURL, poolSize))
	}

	return courier.NewRegistry(clients...)
}
