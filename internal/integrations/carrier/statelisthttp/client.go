package statelisthttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/pkg/errors"
)

// Client speaks the "shipments with a list of states" API shape.
type Client struct {
	baseURL string
	apiKey  string
	display *time.Location
	httpc   *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration, display *time.Location) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if display == nil {
		display = time.UTC
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		display: display,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Name() string { return "statelist" }

type state struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Status   string `json:"status"`
	Location string `json:"location"`
}

type shipment struct {
	TrackingID         string  `json:"trackingId"`
	Status             string  `json:"status"`
	Origin             string  `json:"origin"`
	OriginCountry      string  `json:"originCountry"`
	Destination        string  `json:"destination"`
	DestinationCountry string  `json:"destinationCountry"`
	States             []state `json:"states"`
}

type respBody struct {
	Shipments []shipment `json:"shipments"`
}

func (c *Client) Fetch(ctx context.Context, trackingID string) (models.ShipmentStatus, bool) {
	rb, err := c.get(ctx, trackingID)
	if err != nil {
		slog.Warn("statelist fetch", "tracking_id", trackingID, "error", err.Error())
		return models.ShipmentStatus{}, false
	}
	for _, s := range rb.Shipments {
		if s.TrackingID == "" || strings.EqualFold(s.TrackingID, trackingID) {
			st := c.normalize(s)
			st.TrackingID = trackingID
			return st, st.HasStatus()
		}
	}
	return models.ShipmentStatus{}, false
}

func (c *Client) ParseWebhook(payload []byte) (models.ShipmentStatus, bool) {
	var rb respBody
	if err := json.Unmarshal(payload, &rb); err != nil || len(rb.Shipments) == 0 {
		return models.ShipmentStatus{}, false
	}
	st := c.normalize(rb.Shipments[0])
	if st.TrackingID == "" || !st.HasStatus() {
		return models.ShipmentStatus{}, false
	}
	return st, true
}

func (c *Client) get(ctx context.Context, trackingID string) (respBody, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return respBody{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/shipments"
	q := u.Query()
	q.Set("trackingId", trackingID)
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return respBody{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return respBody{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return respBody{}, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return respBody{}, errors.New("statelist rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return respBody{}, errors.Errorf("statelist http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return respBody{}, errors.Wrap(err, "decode")
	}
	return rb, nil
}

// normalize maps one shipment onto the canonical status; states are oldest-first.
func (c *Client) normalize(s shipment) models.ShipmentStatus {
	st := models.ShipmentStatus{
		TrackingID:     models.CanonicalTrackingID(s.TrackingID),
		StatusText:     models.StatusUnknown,
		EventTimestamp: models.TimestampUnknown,
		Origin:         location(s.Origin, s.OriginCountry),
		Destination:    location(s.Destination, s.DestinationCountry),
	}

	label := s.Status
	if n := len(s.States); n > 0 {
		last := s.States[n-1]
		if label == "" {
			label = last.Status
		}
		st.EventTimestamp = carrier.DisplayTime(last.Date, "+00:00", c.display)
		st.LastEventDetail = last.Status
	}
	if l := strings.TrimSpace(label); l != "" {
		st.StatusText = l
	}

	for _, e := range s.States {
		st.EventHistory = append(st.EventHistory, models.ShipmentEvent{
			ID:          e.ID,
			Timestamp:   carrier.DisplayTime(e.Date, "+00:00", c.display),
			Description: e.Status,
			Location:    e.Location,
		})
	}
	return st
}

func location(name, country string) models.Location {
	loc := models.NewLocation(name)
	if len(country) == 2 {
		loc.RegionCode = strings.ToUpper(country)
		if loc.Name == models.LocationUnknown {
			loc.Name = loc.RegionCode
		}
	}
	return loc
}
