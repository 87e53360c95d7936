package statelisthttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "shipments": [{
    "trackingId": "RR123456785UA",
    "origin": "Kyiv",
    "originCountry": "ua",
    "destination": "Warsaw",
    "destinationCountry": "PL",
    "states": [
      {"id": "1", "date": "2025-01-01T08:00:00Z", "status": "Accepted", "location": "Kyiv"},
      {"id": "2", "date": "2025-01-02T08:00:00Z", "status": "In transit", "location": "Lviv"}
    ]
  }]
}`

func TestClient_Fetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/shipments", r.URL.Path)
		require.Equal(t, "RR123456785UA", r.URL.Query().Get("trackingId"))
		require.Equal(t, "k", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", time.Second, time.FixedZone("UTC+2", 2*3600))
	st, ok := c.Fetch(context.Background(), "RR123456785UA")
	require.True(t, ok)
	require.Equal(t, "In transit", st.StatusText)
	require.Equal(t, "2025-01-02 10:00:00", st.EventTimestamp)
	require.Equal(t, models.Location{Name: "Kyiv", RegionCode: "UA"}, st.Origin)
	require.Equal(t, "PL", st.Destination.RegionCode)
	require.Len(t, st.EventHistory, 2)
	require.Equal(t, "2", st.EventHistory[1].ID)
}

func TestClient_Fetch_EmptyShipmentsIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"shipments": []}`))
	}))
	defer srv.Close()

	_, ok := New(srv.URL, "", time.Second, nil).Fetch(context.Background(), "RR123456785UA")
	require.False(t, ok)
}

func TestClient_Fetch_HTTPErrorIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, ok := New(srv.URL, "", time.Second, nil).Fetch(context.Background(), "RR123456785UA")
	require.False(t, ok)
}

func TestClient_ParseWebhook(t *testing.T) {
	c := New("", "", time.Second, time.UTC)

	st, ok := c.ParseWebhook([]byte(sample))
	require.True(t, ok)
	require.Equal(t, "RR123456785UA", st.TrackingID)
	require.Equal(t, "In transit", st.StatusText)

	st, ok = c.ParseWebhook([]byte(`{"shipments": [{"trackingId": "rr123456785ua", "states": [{"status": "Accepted"}]}]}`))
	require.True(t, ok)
	require.Equal(t, "RR123456785UA", st.TrackingID)

	_, ok = c.ParseWebhook([]byte(`{"shipments": []}`))
	require.False(t, ok)

	_, ok = c.ParseWebhook([]byte(`{"shipments": [{"states": [{"status": "x"}]}]}`))
	require.False(t, ok, "no tracking id")
}
