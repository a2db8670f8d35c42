package elta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ParcelPing/ParcelPing/internal/courier"
)

const historyPage = `<html><body>
<table><tbody>
<tr><td>02/03/2025 14:30</td><td>ΑΦΙΞΗ ΣΕ ΚΑΤΑΣΤΗΜΑ</td><td>ΑΘΗΝΑ</td></tr>
<tr><td>01/03/2025 09:00</td><td>ΠΑΡΑΛΑΒΗ ΑΠΟΣΤΟΛΗΣ</td><td>ΠΑΤΡΑ</td></tr>
</tbody></table>
</body></html>`

const deliveredPage = `<html><body>
<table><tbody>
<tr><td>03/03/2025 11:00</td><td>ΑΠΟΣΤΟΛΗ ΠΑΡΑΔΟΘΗΚΕ</td><td>ΑΘΗΝΑ</td></tr>
</tbody></table>
</body></html>`

func TestFetchStatus_FirstRowIsLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Query/Direct/EL123", r.URL.Path)
		w.Write([]byte(historyPage))
	}))
	defer srv.Close()

	snap, err := New(srv.URL).FetchStatus(context.Background(), "EL123")
	require.NoError(t, err)
	require.Equal(t, "ΑΘΗΝΑ", snap.Location)
	require.Equal(t, "ΑΦΙΞΗ ΣΕ ΚΑΤΑΣΤΗΜΑ", snap.Description)
	require.Equal(t, time.Date(2025, 3, 2, 14, 30, 0, 0, time.UTC), snap.Timestamp)
	require.False(t, snap.Delivered)
}

func TestFetchStatus_Delivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(deliveredPage))
	}))
	defer srv.Close()

	snap, err := New(srv.URL).FetchStatus(context.Background(), "EL123")
	require.NoError(t, err)
	require.True(t, snap.Delivered)
}

func TestFetchStatus_NotFoundMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Ιστορικό Μη Διαθέσιμο</p></body></html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchStatus(context.Background(), "NOPE")
	require.ErrorIs(t, err, courier.ErrNotFound)
}

func TestFetchStatus_MissingTableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>maintenance</p></body></html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchStatus(context.Background(), "EL123")
	require.Error(t, err)
	require.NotErrorIs(t, err, courier.ErrNotFound)
}
