package track123http

import (
	"encoding/json"
	"time"

	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/models"
)

type trackingDetail struct {
	EventID     string `json:"eventId"`
	EventTime   string `json:"eventTime"`
	Timezone    string `json:"timezone"`
	EventDetail string `json:"eventDetail"`
	Description string `json:"description"`
	Address     string `json:"address"`
}

type logisticsInfo struct {
	TransitSubStatus string           `json:"transitSubStatus"`
	TrackingDetails  []trackingDetail `json:"trackingDetails"`
}

type trackingInfo struct {
	TrackNo            string           `json:"trackNo"`
	TrackingNumber     string           `json:"trackingNumber"`
	ShipFrom           string           `json:"shipFrom"`
	ShipTo             string           `json:"shipTo"`
	LastTrackingTime   string           `json:"lastTrackingTime"`
	ShipTime           string           `json:"shipTime"`
	TrackingStatus     string           `json:"trackingStatus"`
	LocalLogisticsInfo logisticsInfo    `json:"localLogisticsInfo"`
	TrackingDetails    []trackingDetail `json:"trackingDetails"`
}

func (t trackingInfo) number() string {
	if t.TrackNo != "" {
		return t.TrackNo
	}
	return t.TrackingNumber
}

// webhookEnvelope accepts both {"data": {...}} and a bare tracking object.
type webhookEnvelope struct {
	Data *trackingInfo `json:"data"`
}

func decodeWebhook(payload []byte) (trackingInfo, bool) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Data != nil && env.Data.number() != "" {
		return *env.Data, true
	}
	var bare trackingInfo
	if err := json.Unmarshal(payload, &bare); err != nil {
		return trackingInfo{}, false
	}
	return bare, bare.number() != ""
}

// normalize maps a Track123 tracking object onto the canonical status.
// trackingDetails arrive newest-first.
func normalize(t trackingInfo, display *time.Location) models.ShipmentStatus {
	st := models.ShipmentStatus{
		TrackingID:     models.CanonicalTrackingID(t.number()),
		StatusText:     models.StatusUnknown,
		EventTimestamp: models.TimestampUnknown,
		Origin:         models.NewLocation(t.ShipFrom),
		Destination:    models.NewLocation(t.ShipTo),
	}

	details := t.LocalLogisticsInfo.TrackingDetails
	if len(details) == 0 {
		details = t.TrackingDetails
	}
	lastTime := t.LastTrackingTime
	if lastTime == "" {
		lastTime = t.ShipTime
	}

	label := ""
	if len(details) > 0 {
		newest := details[0]
		ts := newest.EventTime
		if ts == "" {
			ts = lastTime
		}
		st.EventTimestamp = carrier.DisplayTime(ts, newest.Timezone, display)
		label = newest.EventDetail
		st.LastEventDetail = newest.Description
		if st.LastEventDetail == "" {
			st.LastEventDetail = newest.EventDetail
		}
	} else if lastTime != "" {
		st.EventTimestamp = carrier.DisplayTime(lastTime, "", display)
	}
	if label == "" {
		label = t.LocalLogisticsInfo.TransitSubStatus
	}
	if label == "" {
		label = t.TrackingStatus
	}
	if s := carrier.FirstClause(label); s != "" {
		st.StatusText = s
	}

	for i := len(details) - 1; i >= 0; i-- {
		d := details[i]
		desc := d.Description
		if desc == "" {
			desc = d.EventDetail
		}
		st.EventHistory = append(st.EventHistory, models.ShipmentEvent{
			ID:          d.EventID,
			Timestamp:   carrier.DisplayTime(d.EventTime, d.Timezone, display),
			Description: desc,
			Location:    d.Address,
		})
	}
	return st
}
