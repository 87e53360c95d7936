package track123http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/pkg/errors"
)

const (
	apiPrefix    = "/gateway/open-api/tk/v2.1/track"
	secretHeader = "Track123-Api-Secret"
	codeOK       = "00000"
)

type Client struct {
	baseURL  string
	apiKey   string
	display  *time.Location
	attempts int
	backoff  time.Duration
	httpc    *http.Client
	sleep    func(ctx context.Context, d time.Duration) error
}

type Options struct {
	Timeout      time.Duration
	PollAttempts int
	PollBackoff  time.Duration
	Display      *time.Location
}

func New(baseURL, apiKey string, opts Options) *Client {
	if baseURL == "" {
		baseURL = "https://api.track123.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 5
	}
	if opts.PollBackoff <= 0 {
		opts.PollBackoff = 1500 * time.Millisecond
	}
	if opts.Display == nil {
		opts.Display = time.UTC
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		display:  opts.Display,
		attempts: opts.PollAttempts,
		backoff:  opts.PollBackoff,
		httpc: &http.Client{
			Timeout: opts.Timeout,
		},
		sleep: sleepCtx,
	}
}

func (c *Client) Name() string { return "track123" }

type apiResp struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type importData struct {
	Accepted []struct {
		TrackNo string `json:"trackNo"`
	} `json:"accepted"`
	Rejected []struct {
		TrackNo string `json:"trackNo"`
		Error   struct {
			Code string `json:"code"`
			Msg  string `json:"msg"`
		} `json:"error"`
	} `json:"rejected"`
}

type queryData struct {
	Accepted struct {
		Content []trackingInfo `json:"content"`
	} `json:"accepted"`
}

// Fetch queries the tracking; when upstream does not know it yet, imports it
// and polls a bounded number of times for the asynchronous result. A slot
// created here is released again if no status could be resolved.
func (c *Client) Fetch(ctx context.Context, trackingID string) (models.ShipmentStatus, bool) {
	st, ok, err := c.query(ctx, trackingID)
	if err != nil {
		slog.Warn("track123 query", "tracking_id", trackingID, "error", err.Error())
		return models.ShipmentStatus{}, false
	}
	if ok {
		return st, true
	}

	created, err := c.Register(ctx, trackingID)
	if err != nil {
		slog.Warn("track123 register", "tracking_id", trackingID, "error", err.Error())
		return models.ShipmentStatus{}, false
	}

	st, ok = c.awaitStatus(ctx, trackingID)
	if ok {
		return st, true
	}
	if created {
		// Use a fresh context: the caller's one may already be done.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.httpc.Timeout)
		defer cancel()
		if err := c.Deregister(dctx, trackingID); err != nil {
			slog.Warn("track123 deregister", "tracking_id", trackingID, "error", err.Error())
		}
	}
	return models.ShipmentStatus{}, false
}

func (c *Client) awaitStatus(ctx context.Context, trackingID string) (models.ShipmentStatus, bool) {
	for i := 0; i < c.attempts; i++ {
		if err := c.sleep(ctx, c.backoff); err != nil {
			return models.ShipmentStatus{}, false
		}
		st, ok, err := c.query(ctx, trackingID)
		if err != nil {
			slog.Warn("track123 poll", "tracking_id", trackingID, "attempt", i+1, "error", err.Error())
			continue
		}
		if ok {
			return st, true
		}
	}
	return models.ShipmentStatus{}, false
}

func (c *Client) ParseWebhook(payload []byte) (models.ShipmentStatus, bool) {
	t, ok := decodeWebhook(payload)
	if !ok {
		return models.ShipmentStatus{}, false
	}
	st := normalize(t, c.display)
	if st.TrackingID == "" || !st.HasStatus() {
		return models.ShipmentStatus{}, false
	}
	return st, true
}

// Register imports trackingID upstream. created is false when it was already there.
func (c *Client) Register(ctx context.Context, trackingID string) (bool, error) {
	var d importData
	if err := c.call(ctx, "/import", []map[string]string{{"trackNo": trackingID}}, &d); err != nil {
		return false, err
	}
	for _, a := range d.Accepted {
		if a.TrackNo == trackingID {
			return true, nil
		}
	}
	for _, r := range d.Rejected {
		if r.TrackNo != trackingID {
			continue
		}
		if strings.Contains(strings.ToLower(r.Error.Msg), "exist") {
			return false, nil
		}
		return false, errors.Errorf("track123 import rejected: %s %s", r.Error.Code, r.Error.Msg)
	}
	return false, nil
}

func (c *Client) Deregister(ctx context.Context, trackingID string) error {
	return c.call(ctx, "/delete", map[string][]string{"trackNos": {trackingID}}, nil)
}

func (c *Client) query(ctx context.Context, trackingID string) (models.ShipmentStatus, bool, error) {
	var d queryData
	if err := c.call(ctx, "/query", map[string][]string{"trackNos": {trackingID}}, &d); err != nil {
		return models.ShipmentStatus{}, false, err
	}
	for _, t := range d.Accepted.Content {
		if !strings.EqualFold(t.number(), trackingID) {
			continue
		}
		st := normalize(t, c.display)
		st.TrackingID = trackingID
		return st, st.HasStatus(), nil
	}
	return models.ShipmentStatus{}, false, nil
}

func (c *Client) call(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(secretHeader, c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.New("track123 rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("track123 http %d", resp.StatusCode)
	}

	var r apiResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return errors.Wrap(err, "decode")
	}
	if r.Code != codeOK {
		return errors.Errorf("track123 code=%s msg=%s", r.Code, r.Msg)
	}
	if out == nil || len(r.Data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(r.Data, out), "decode data")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
