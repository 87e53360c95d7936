package models

import "strings"

// Sentinels used by provider adapters when upstream data is missing.
const (
	StatusUnknown    = "UNKNOWN"
	TimestampUnknown = "unknown"
	LocationUnknown  = "Unknown"
)

// CanonicalTrackingID is the stored form of a tracking number: trimmed and upper-cased.
func CanonicalTrackingID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Location is free text plus an optional two-letter region code used for flag rendering.
type Location struct {
	Name       string `json:"name"`
	RegionCode string `json:"region_code,omitempty"`
}

// NewLocation builds a Location from a raw provider value. A bare two-letter
// value is treated as a region code.
func NewLocation(raw string) Location {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{Name: LocationUnknown}
	}
	loc := Location{Name: raw}
	if isRegionCode(raw) {
		loc.RegionCode = strings.ToUpper(raw)
	}
	return loc
}

func isRegionCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

type ShipmentEvent struct {
	ID          string `json:"id,omitempty"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
}

// ShipmentStatus is the canonical status produced by every provider adapter.
// EventHistory is ordered newest-last.
type ShipmentStatus struct {
	TrackingID      string          `json:"tracking_id"`
	StatusText      string          `json:"status_text"`
	EventTimestamp  string          `json:"event_timestamp"`
	Origin          Location        `json:"origin"`
	Destination     Location        `json:"destination"`
	LastEventDetail string          `json:"last_event_detail,omitempty"`
	EventHistory    []ShipmentEvent `json:"event_history,omitempty"`
}

// HasStatus reports whether the status carries real data rather than the sentinel.
func (s ShipmentStatus) HasStatus() bool {
	return s.StatusText != "" && s.StatusText != StatusUnknown
}
