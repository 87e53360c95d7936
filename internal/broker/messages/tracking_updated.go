package messages

import (
	"encoding/json"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/pkg/errors"
)

// TrackingUpdated carries one poll result from the worker to the api.
// It is keyed by tracking id so results for one shipment stay ordered.
type TrackingUpdated struct {
	TrackingID string                `json:"tracking_id"`
	CheckedAt  time.Time             `json:"checked_at"`
	Provider   string                `json:"provider,omitempty"`
	Status     models.ShipmentStatus `json:"status"`
}

func (m TrackingUpdated) Key() []byte { return []byte(m.TrackingID) }

func (m TrackingUpdated) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	return b, errors.Wrap(err, "encode tracking updated")
}

func DecodeTrackingUpdated(b []byte) (TrackingUpdated, error) {
	var m TrackingUpdated
	if err := json.Unmarshal(b, &m); err != nil {
		return TrackingUpdated{}, errors.Wrap(err, "decode tracking updated")
	}
	if m.TrackingID == "" {
		return TrackingUpdated{}, errors.New("tracking_id is required")
	}
	if m.Status.TrackingID == "" {
		m.Status.TrackingID = m.TrackingID
	}
	return m, nil
}
