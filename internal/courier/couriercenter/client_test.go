package couriercenter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ParcelPing/ParcelPing/internal/courier"
)

const trackPage = `<html><body>
<div class="status">Κατάσταση: (15) InTransit</div>
<div class="track-table">
  <div class="row">
    <div id="date">02/03/2025</div>
    <div id="time">16:45</div>
    <div id="action">Άφιξη στο κέντρο διαλογής</div>
    <div id="area">ΑΘΗΝΑ</div>
  </div>
  <div class="row">
    <div id="date">01/03/2025</div>
    <div id="time">09:00</div>
    <div id="action">Παραλαβή</div>
    <div id="area">ΠΑΤΡΑ</div>
  </div>
</div>
</body></html>`

const deliveredPage = `<html><body>
<div class="status">Κατάσταση: (29) DeliveryCompleted</div>
<div class="track-table">
  <div class="row">
    <div id="date">03/03/2025</div>
    <div id="time">12:10</div>
    <div id="action">Παράδοση</div>
    <div id="area">ΑΘΗΝΑ</div>
  </div>
</div>
</body></html>`

func TestFetchStatus_FirstRowIsLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "CC123", r.PostFormValue("tracknr"))
		w.Write([]byte(trackPage))
	}))
	defer srv.Close()

	snap, err := New(srv.URL).FetchStatus(context.Background(), "CC123")
	require.NoError(t, err)
	require.Equal(t, "ΑΘΗΝΑ", snap.Location)
	require.Equal(t, "Άφιξη στο κέντρο διαλογής", snap.Description)
	require.Equal(t, time.Date(2025, 3, 2, 16, 45, 0, 0, time.UTC), snap.Timestamp)
	require.False(t, snap.Delivered)
}

func TestFetchStatus_DeliveredMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(deliveredPage))
	}))
	defer srv.Close()

	snap, err := New(srv.URL).FetchStatus(context.Background(), "CC123")
	require.NoError(t, err)
	require.True(t, snap.Delivered)
	require.Equal(t, "Παράδοση", snap.Description)
}

func TestFetchStatus_ErrorHeadingIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h4 class="error">Δεν βρέθηκε</h4></body></html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchStatus(context.Background(), "NOPE")
	require.ErrorIs(t, err, courier.ErrNotFound)
}

func TestFetchStatus_400IsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchStatus(context.Background(), "NOPE")
	require.ErrorIs(t, err, courier.ErrNotFound)
}

func TestFetchStatus_NoTableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchStatus(context.Background(), "CC123")
	require.Error(t, err)
	require.NotErrorIs(t, err, courier.ErrNotFound)
}
