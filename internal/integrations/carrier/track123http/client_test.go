package track123http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/stretchr/testify/require"
)

const queryOK = `{
  "code": "00000",
  "data": {
    "accepted": {
      "content": [{
        "trackNo": "AEBT123456789",
        "shipFrom": "CN",
        "shipTo": "UA",
        "lastTrackingTime": "2025-01-01 10:00:00",
        "trackingStatus": "INTRANSIT",
        "localLogisticsInfo": {
          "transitSubStatus": "IN_TRANSIT_01",
          "trackingDetails": [
            {"eventId": "e2", "eventTime": "2025-01-02 10:00:00", "timezone": "+08:00", "eventDetail": "Arrived at sorting center, Shenzhen", "address": "Shenzhen"},
            {"eventId": "e1", "eventTime": "2025-01-01 10:00:00", "timezone": "+08:00", "eventDetail": "Accepted", "address": "Shenzhen"}
          ]
        }
      }]
    },
    "rejected": []
  }
}`

const queryEmpty = `{"code":"00000","data":{"accepted":{"content":[]},"rejected":[]}}`

type fakeUpstream struct {
	queries   atomic.Int32
	imports   atomic.Int32
	deletes   atomic.Int32
	readyFrom int32 // query number from which the status is returned; 0 = never
}

func (f *fakeUpstream) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "k", r.Header.Get(secretHeader))
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case apiPrefix + "/query":
			n := f.queries.Add(1)
			if f.readyFrom > 0 && n >= f.readyFrom {
				_, _ = w.Write([]byte(queryOK))
				return
			}
			_, _ = w.Write([]byte(queryEmpty))
		case apiPrefix + "/import":
			f.imports.Add(1)
			_, _ = w.Write([]byte(`{"code":"00000","data":{"accepted":[{"trackNo":"AEBT123456789"}],"rejected":[]}}`))
		case apiPrefix + "/delete":
			f.deletes.Add(1)
			_, _ = w.Write([]byte(`{"code":"00000","data":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestClient(url string) *Client {
	c := New(url, "k", Options{PollAttempts: 3, PollBackoff: time.Millisecond, Display: time.FixedZone("UTC+2", 2*3600)})
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestClient_Fetch_KnownTracking(t *testing.T) {
	up := &fakeUpstream{readyFrom: 1}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	st, ok := newTestClient(srv.URL).Fetch(context.Background(), "AEBT123456789")
	require.True(t, ok)
	require.Equal(t, "AEBT123456789", st.TrackingID)
	require.Equal(t, "Arrived at sorting center", st.StatusText)
	require.Equal(t, "2025-01-02 04:00:00", st.EventTimestamp)
	require.Equal(t, models.Location{Name: "CN", RegionCode: "CN"}, st.Origin)
	require.Equal(t, "UA", st.Destination.RegionCode)
	require.Len(t, st.EventHistory, 2)
	require.Equal(t, "e1", st.EventHistory[0].ID, "history is newest-last")
	require.Equal(t, "e2", st.EventHistory[1].ID)
	require.Equal(t, int32(0), up.imports.Load())
}

func TestClient_Fetch_RegistersAndPolls(t *testing.T) {
	up := &fakeUpstream{readyFrom: 3}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	st, ok := newTestClient(srv.URL).Fetch(context.Background(), "AEBT123456789")
	require.True(t, ok)
	require.Equal(t, "Arrived at sorting center", st.StatusText)
	require.Equal(t, int32(1), up.imports.Load())
	require.Equal(t, int32(3), up.queries.Load())
	require.Equal(t, int32(0), up.deletes.Load())
}

func TestClient_Fetch_GivesUpAndDeregisters(t *testing.T) {
	up := &fakeUpstream{}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	_, ok := newTestClient(srv.URL).Fetch(context.Background(), "AEBT123456789")
	require.False(t, ok)
	require.Equal(t, int32(1), up.imports.Load())
	require.Equal(t, int32(1+3), up.queries.Load(), "initial query plus the fixed retry budget")
	require.Equal(t, int32(1), up.deletes.Load())
}

func TestClient_Fetch_AlreadyRegisteredIsNotDeleted(t *testing.T) {
	var deletes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case apiPrefix + "/query":
			_, _ = w.Write([]byte(queryEmpty))
		case apiPrefix + "/import":
			_, _ = w.Write([]byte(`{"code":"00000","data":{"accepted":[],"rejected":[{"trackNo":"X1XXXX","error":{"code":"A0400","msg":"tracking number already exists"}}]}}`))
		case apiPrefix + "/delete":
			deletes.Add(1)
			_, _ = w.Write([]byte(`{"code":"00000"}`))
		}
	}))
	defer srv.Close()

	_, ok := newTestClient(srv.URL).Fetch(context.Background(), "X1XXXX")
	require.False(t, ok)
	require.Equal(t, int32(0), deletes.Load())
}

func TestClient_Fetch_RateLimitedIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, ok := newTestClient(srv.URL).Fetch(context.Background(), "AEBT123456789")
	require.False(t, ok)
}

func TestClient_Fetch_BadCodeIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"A0001","msg":"invalid secret"}`))
	}))
	defer srv.Close()

	_, ok := newTestClient(srv.URL).Fetch(context.Background(), "AEBT123456789")
	require.False(t, ok)
}

func TestClient_ParseWebhook(t *testing.T) {
	c := newTestClient("http://unused")

	var q struct {
		Data struct {
			Accepted struct {
				Content []json.RawMessage `json:"content"`
			} `json:"accepted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(queryOK), &q))
	tracking := q.Data.Accepted.Content[0]

	// bare tracking object
	st, ok := c.ParseWebhook(tracking)
	require.True(t, ok)
	require.Equal(t, "AEBT123456789", st.TrackingID)
	require.Equal(t, "Arrived at sorting center", st.StatusText)

	// wrapped in data
	st, ok = c.ParseWebhook([]byte(`{"data":` + string(tracking) + `}`))
	require.True(t, ok)
	require.Equal(t, "AEBT123456789", st.TrackingID)

	// pushed numbers are stored upper-case
	st, ok = c.ParseWebhook([]byte(`{"trackNo":" aebt123456789 ","trackingStatus":"Delivered"}`))
	require.True(t, ok)
	require.Equal(t, "AEBT123456789", st.TrackingID)

	_, ok = c.ParseWebhook([]byte(`{"data":{"shipFrom":"CN"}}`))
	require.False(t, ok, "no tracking number")

	_, ok = c.ParseWebhook([]byte(`not json`))
	require.False(t, ok)
}

func TestNormalize_FallbackLabels(t *testing.T) {
	display := time.UTC
	st := normalize(trackingInfo{TrackNo: "A", TrackingStatus: "Delivered, signed", LastTrackingTime: "2025-01-01 08:00:00"}, display)
	require.Equal(t, "Delivered", st.StatusText)
	require.Equal(t, "2025-01-01 00:00:00", st.EventTimestamp)
	require.Equal(t, models.LocationUnknown, st.Origin.Name)
	require.Empty(t, st.EventHistory)

	st = normalize(trackingInfo{TrackNo: "A"}, display)
	require.Equal(t, models.StatusUnknown, st.StatusText)
	require.Equal(t, models.TimestampUnknown, st.EventTimestamp)
}
