package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/stretchr/testify/require"
)

func first(int) int { return 0 }

func TestFlag(t *testing.T) {
	require.Equal(t, "🇺🇦", Flag("UA"))
	require.Equal(t, "🇨🇳", Flag("cn"))
	require.Equal(t, "🌍", Flag(""))
	require.Equal(t, "🌍", Flag("UKR"))
	require.Equal(t, "🌍", Flag("1A"))
}

func TestFormatStatus(t *testing.T) {
	st := models.ShipmentStatus{
		TrackingID:      "X1XXXX",
		StatusText:      "Delivered <ok>",
		EventTimestamp:  "2025-01-01 10:00:00",
		Origin:          models.NewLocation("CN"),
		Destination:     models.Location{Name: "Kyiv"},
		LastEventDetail: "Signed by A&B",
	}

	msg := FormatStatus(st, false, first)
	require.True(t, strings.HasPrefix(msg, "<b>🔔 ОНОВЛЕННЯ СТАТУСУ</b>"))
	require.Contains(t, msg, "<code>X1XXXX</code>")
	require.Contains(t, msg, "Delivered &lt;ok&gt;")
	require.Contains(t, msg, "🇨🇳 CN ➜ 🌍 Kyiv")
	require.Contains(t, msg, "<blockquote>Signed by A&amp;B</blockquote>")
	require.True(t, strings.HasSuffix(msg, "<i>🕒 2025-01-01 10:00:00</i>"))

	initial := FormatStatus(models.ShipmentStatus{TrackingID: "X", StatusText: "A", EventTimestamp: models.TimestampUnknown}, true, func(n int) int { return n - 1 })
	require.Contains(t, initial, "📣 ПОЧАТОК МОНІТОРИНГУ")
	require.NotContains(t, initial, "blockquote")
	require.Contains(t, initial, "Час невідомий")
	require.Contains(t, initial, "Unknown ➜")
}

func TestFormatList(t *testing.T) {
	require.Contains(t, FormatList(nil, nil), "📭")

	s := "In transit"
	rows := []*models.Tracking{{
		TrackingID:     "A1",
		LastStatus:     &s,
		LastUpdateTime: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Origin:         models.NewLocation("CN"),
		Destination:    models.NewLocation("UA"),
	}}
	msg := FormatList(rows, []string{"A1", "B2"})
	require.Contains(t, msg, "• <code>A1</code> — In transit (<i>2025-01-02 03:04:05</i>)")
	require.Contains(t, msg, "🇨🇳 CN ➜ 🇺🇦 UA")
	require.Contains(t, msg, "• <code>B2</code> — Статус ще невідомий (<i>Час невідомий</i>)")
}

func TestFormatInfo_CapsHistory(t *testing.T) {
	st := models.ShipmentStatus{TrackingID: "A1", StatusText: "S"}
	for i := 0; i < 15; i++ {
		st.EventHistory = append(st.EventHistory, models.ShipmentEvent{Timestamp: "t", Description: string(rune('a' + i))})
	}
	msg := FormatInfo(st)
	require.Contains(t, msg, "<b>Історія:</b>")
	require.NotContains(t, msg, "</i> a\n")
	require.True(t, strings.HasSuffix(msg, "</i> o"), "newest last")
	require.Equal(t, maxInfoEvents, strings.Count(msg, "• "))
}
