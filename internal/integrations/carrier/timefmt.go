package carrier

import (
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
)

const (
	DisplayLayout       = "2006-01-02 15:04:05"
	DefaultEventOffset  = "+08:00"
	providerLocalLayout = "2006-01-02 15:04:05"
)

// DisplayTime converts a provider timestamp to the display zone.
// raw is either RFC 3339 or a local "2006-01-02 15:04:05" paired with a
// "±HH:MM" offset. Unparsable values come back unchanged, empty ones as the
// "unknown" sentinel.
func DisplayTime(raw, offset string, display *time.Location) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.TimestampUnknown
	}
	if display == nil {
		display = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(display).Format(DisplayLayout)
	}
	if offset == "" {
		offset = DefaultEventOffset
	}
	zone, ok := parseOffset(offset)
	if !ok {
		return raw
	}
	t, err := time.ParseInLocation(providerLocalLayout, raw, zone)
	if err != nil {
		return raw
	}
	return t.In(display).Format(DisplayLayout)
}

func parseOffset(s string) (*time.Location, bool) {
	if len(s) < 2 {
		return nil, false
	}
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, false
	}
	hh, mm, found := strings.Cut(s[1:], ":")
	h, err := strconv.Atoi(hh)
	if err != nil {
		return nil, false
	}
	m := 0
	if found {
		if m, err = strconv.Atoi(mm); err != nil {
			return nil, false
		}
	}
	return time.FixedZone(s, sign*(h*3600+m*60)), true
}

// FirstClause returns the part of a provider label before the first comma.
func FirstClause(s string) string {
	head, _, _ := strings.Cut(s, ",")
	return strings.TrimSpace(head)
}
