package shipments_api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/ParcelPing/ParcelPing/internal/courier"
	"github.com/ParcelPing/ParcelPing/internal/models"
	"github.com/ParcelPing/ParcelPing/internal/services/shipments"
	"github.com/ParcelPing/ParcelPing/internal/storage/pgstore"
)

// ShipmentsAPI — JSON-фасад командного сервиса для внешней чат-поверхности.
type ShipmentsAPI struct {
	svc *shipments.Service
}

func New(svc *shipments.Service) *ShipmentsAPI {
	return &ShipmentsAPI{svc: svc}
}

func (a *ShipmentsAPI) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/v1/tenants/{tenantID}", a.ensureTenant)
	r.Delete("/v1/tenants/{tenantID}", a.removeTenant)
	r.Put("/v1/tenants/{tenantID}/channel", a.setChannel)

	r.Post("/v1/tenants/{tenantID}/shipments", a.addShipment)
	r.Get("/v1/tenants/{tenantID}/shipments", a.listShipments)
	r.Delete("/v1/tenants/{tenantID}/shipments/{trackingID}", a.removeShipment)
	r.Patch("/v1/tenants/{tenantID}/shipments/{trackingID}", a.editShipment)

	r.Get("/v1/track/{courier}/{trackingID}", a.trackOnce)

	return r
}

type addShipmentRequest struct {
	Courier     string `json:"courier"`
	TrackingID  string `json:"trackingId"`
	Description string `json:"description"`
}

type setChannelRequest struct {
	Channel string `json:"channel"`
}

type editShipmentRequest struct {
	Description string `json:"description"`
}

type shipmentView struct {
	TrackingID  string                `json:"trackingId"`
	Courier     string                `json:"courier"`
	Description string                `json:"description"`
	Status      models.StatusSnapshot `json:"status"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

func (a *ShipmentsAPI) ensureTenant(w http.ResponseWriter, r *http.Request) {
	err := a.svc.EnsureTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *ShipmentsAPI) removeTenant(w http.ResponseWriter, r *http.Request) {
	err := a.svc.RemoveTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *ShipmentsAPI) setChannel(w http.ResponseWriter, r *http.Request) {
	var req setChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	err := a.svc.SetChannel(r.Context(), chi.URLParam(r, "tenantID"), req.Channel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *ShipmentsAPI) addShipment(w http.ResponseWriter, r *http.Request) {
	var req addShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	err := a.svc.Add(r.Context(), chi.URLParam(r, "tenantID"), req.Courier, req.TrackingID, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (a *ShipmentsAPI) listShipments(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.List(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]shipmentView, 0, len(items))
	for _, it := range items {
		out = append(out, shipmentView{
			TrackingID:  it.TrackingID,
			Courier:     it.Courier,
			Description: it.Description,
			Status:      it.Snapshot,
			CreatedAt:   it.CreatedAt,
			UpdatedAt:   it.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": out})
}

func (a *ShipmentsAPI) removeShipment(w http.ResponseWriter, r *http.Request) {
	err := a.svc.Remove(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "trackingID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *ShipmentsAPI) editShipment(w http.ResponseWriter, r *http.Request) {
	var req editShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	err := a.svc.Edit(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "trackingID"), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *ShipmentsAPI) trackOnce(w http.ResponseWriter, r *http.Request) {
	snap, err := a.svc.TrackOnce(r.Context(), chi.URLParam(r, "courier"), chi.URLParam(r, "trackingID"))
	if err != nil {
		// Неудача разовой проверки почти всегда на стороне источника.
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, shipments.ErrUnknownCourier):
			code = http.StatusBadRequest
		case errors.Is(err, courier.ErrNotFound):
			code = http.StatusNotFound
		}
		writeJSON(w, code, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": snap})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, shipments.ErrUnknownCourier):
		code = http.StatusBadRequest
	case errors.Is(err, shipments.ErrNoUpdatesChannel):
		code = http.StatusPreconditionFailed
	case errors.Is(err, shipments.ErrAlreadyDelivered):
		code = http.StatusConflict
	case errors.Is(err, pgstore.ErrAlreadyWatched):
		code = http.StatusConflict
	case errors.Is(err, pgstore.ErrNotWatched):
		code = http.StatusNotFound
	case errors.Is(err, courier.ErrNotFound):
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
