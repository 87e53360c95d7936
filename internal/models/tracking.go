package models

import "time"

// Tracking is the stored state of one shipment, keyed by TrackingID.
// LastStatus is nil until the first successful fetch has been recorded.
type Tracking struct {
	TrackingID       string
	LastStatus       *string
	LastUpdateTime   time.Time
	Origin           Location
	Destination      Location
	DisplayTimestamp string
	CreatedAt        time.Time
}

// StatusOr returns the stored status or def when nothing was recorded yet.
func (t *Tracking) StatusOr(def string) string {
	if t == nil || t.LastStatus == nil {
		return def
	}
	return *t.LastStatus
}

type Subscription struct {
	SubscriberID int64
	TrackingID   string
	CreatedAt    time.Time
}

// Subscriber is informational chat metadata, upserted on every successful /track.
type Subscriber struct {
	SubscriberID int64
	Username     string
	FirstName    string
	UpdatedAt    time.Time
}

// TrackingWrite is the set of overwritable fields of a Tracking row.
// CreatedAt is used only when the write inserts a new row.
type TrackingWrite struct {
	TrackingID       string
	Status           string
	UpdatedAt        time.Time
	Origin           Location
	Destination      Location
	DisplayTimestamp string
	CreatedAt        time.Time
}

// WriteFromStatus builds the row fields mirrored from a freshly observed status.
func WriteFromStatus(st ShipmentStatus, now time.Time) TrackingWrite {
	return TrackingWrite{
		TrackingID:       st.TrackingID,
		Status:           st.StatusText,
		UpdatedAt:        now,
		Origin:           st.Origin,
		Destination:      st.Destination,
		DisplayTimestamp: st.EventTimestamp,
		CreatedAt:        now,
	}
}
