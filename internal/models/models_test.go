package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLocation(t *testing.T) {
	require.Equal(t, Location{Name: LocationUnknown}, NewLocation("  "))
	require.Equal(t, Location{Name: "ua", RegionCode: "UA"}, NewLocation("ua"))
	require.Equal(t, Location{Name: "Kyiv"}, NewLocation(" Kyiv "))
	require.Equal(t, Location{Name: "U1"}, NewLocation("U1"))
}

func TestHasStatus(t *testing.T) {
	require.False(t, ShipmentStatus{}.HasStatus())
	require.False(t, ShipmentStatus{StatusText: StatusUnknown}.HasStatus())
	require.True(t, ShipmentStatus{StatusText: "unknown"}.HasStatus(), "comparison is exact")
}

func TestStatusOr(t *testing.T) {
	var nilTracking *Tracking
	require.Equal(t, "-", nilTracking.StatusOr("-"))
	require.Equal(t, "-", (&Tracking{}).StatusOr("-"))
	s := "Delivered"
	require.Equal(t, "Delivered", (&Tracking{LastStatus: &s}).StatusOr("-"))
}

func TestWriteFromStatus(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := WriteFromStatus(ShipmentStatus{
		TrackingID:     "X1",
		StatusText:     "In transit",
		EventTimestamp: "2025-01-01 02:00:00",
		Origin:         NewLocation("CN"),
	}, now)
	require.Equal(t, "X1", w.TrackingID)
	require.Equal(t, "In transit", w.Status)
	require.Equal(t, "2025-01-01 02:00:00", w.DisplayTimestamp)
	require.Equal(t, now, w.UpdatedAt)
	require.Equal(t, now, w.CreatedAt)
}
