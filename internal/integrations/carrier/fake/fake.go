package fake

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/models"
)

var progression = []string{"Accepted", "In transit", "Arrived at destination country", "Out for delivery", "Delivered"}

// FakeClient is an offline provider: the status of an id depends only on its
// FNV hash and on how many steps have elapsed since the hash-derived start.
// Ids whose hash is divisible by 7 are "not found".
type FakeClient struct {
	step    time.Duration
	now     func() time.Time
	display *time.Location
}

func New() *FakeClient {
	return &FakeClient{step: time.Hour, now: time.Now, display: time.UTC}
}

func (f *FakeClient) WithClock(now func() time.Time, step time.Duration) *FakeClient {
	f.now = now
	if step > 0 {
		f.step = step
	}
	return f
}

func (f *FakeClient) Name() string { return "fake" }

func (f *FakeClient) Fetch(ctx context.Context, trackingID string) (models.ShipmentStatus, bool) {
	if ctx.Err() != nil || trackingID == "" {
		return models.ShipmentStatus{}, false
	}
	v := hash(trackingID)
	if v%7 == 0 {
		return models.ShipmentStatus{}, false
	}

	steps := int(v%3) + int((f.now().UnixNano()/int64(f.step))%int64(len(progression)))
	if steps >= len(progression) {
		steps = len(progression) - 1
	}

	st := models.ShipmentStatus{
		TrackingID:  trackingID,
		StatusText:  progression[steps],
		Origin:      models.NewLocation("CN"),
		Destination: models.NewLocation("UA"),
	}
	base := f.now().Add(-time.Duration(steps) * f.step).UTC()
	for i := 0; i <= steps; i++ {
		ts := base.Add(time.Duration(i) * f.step).Format(time.RFC3339)
		st.EventHistory = append(st.EventHistory, models.ShipmentEvent{
			ID:          string(rune('a' + i)),
			Timestamp:   carrier.DisplayTime(ts, "", f.display),
			Description: progression[i],
		})
	}
	last := st.EventHistory[len(st.EventHistory)-1]
	st.EventTimestamp = last.Timestamp
	st.LastEventDetail = "fake carrier update"
	return st, true
}

// ParseWebhook accepts the canonical status JSON, handy for local testing.
func (f *FakeClient) ParseWebhook(payload []byte) (models.ShipmentStatus, bool) {
	var st models.ShipmentStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		return models.ShipmentStatus{}, false
	}
	st.TrackingID = models.CanonicalTrackingID(st.TrackingID)
	if st.TrackingID == "" || !st.HasStatus() {
		return models.ShipmentStatus{}, false
	}
	if st.EventTimestamp == "" {
		st.EventTimestamp = models.TimestampUnknown
	}
	if st.Origin.Name == "" {
		st.Origin = models.NewLocation("")
	}
	if st.Destination.Name == "" {
		st.Destination = models.NewLocation("")
	}
	return st, true
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
