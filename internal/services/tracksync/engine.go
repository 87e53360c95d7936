// Package tracksync reconciles observed shipment statuses against stored state
// and fans confirmed changes out to subscribers.
package tracksync

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/metrics"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/BearBump/TrackBot/internal/services/tracksync")

type Repository interface {
	GetTracking(ctx context.Context, trackingID string) (*models.Tracking, bool, error)
	InsertTracking(ctx context.Context, w models.TrackingWrite) (bool, error)
	CompareAndSetStatus(ctx context.Context, w models.TrackingWrite, expected *string) (bool, error)
	ListSubscribers(ctx context.Context, trackingID string) ([]int64, error)
}

// Notifier must not block on delivery; failures are its own concern.
type Notifier interface {
	Notify(ctx context.Context, subscriberID int64, status models.ShipmentStatus, initial bool)
}

type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeUntracked  Outcome = "untracked"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeInvalid    Outcome = "invalid"
)

type Source string

const (
	SourcePoll    Source = "poll"
	SourceWebhook Source = "webhook"
)

type Engine struct {
	provider carrier.Provider
	repo     Repository
	notifier Notifier
	locker   Locker
	now      func() time.Time
}

func New(provider carrier.Provider, repo Repository, notifier Notifier, locker Locker) *Engine {
	return &Engine{
		provider: provider,
		repo:     repo,
		notifier: notifier,
		locker:   locker,
		now:      time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Provider() carrier.Provider { return e.provider }

// OnFirstTrack fetches an identifier this system has never stored and records it.
// found=false means the provider could not resolve it and nothing was written.
// If another caller stored the row first, the stored state is returned and the
// fetched one is discarded; pushes may already have moved it past this fetch.
// No notification is sent; the caller reports the status to the new subscriber.
func (e *Engine) OnFirstTrack(ctx context.Context, trackingID string) (models.ShipmentStatus, bool, error) {
	st, ok := e.provider.Fetch(ctx, trackingID)
	if !ok {
		metrics.ProviderFetches.WithLabelValues(e.provider.Name(), "absent").Inc()
		return models.ShipmentStatus{}, false, nil
	}
	metrics.ProviderFetches.WithLabelValues(e.provider.Name(), "found").Inc()
	st.TrackingID = trackingID

	unlock, err := e.locker.Lock(ctx, trackingID)
	if err != nil {
		return models.ShipmentStatus{}, false, errors.Wrap(err, "lock tracking")
	}
	defer unlock()

	inserted, err := e.repo.InsertTracking(ctx, models.WriteFromStatus(st, e.now()))
	if err != nil {
		return models.ShipmentStatus{}, false, errors.Wrap(err, "insert tracking")
	}
	if inserted {
		return st, true, nil
	}

	cur, ok, err := e.repo.GetTracking(ctx, trackingID)
	if err != nil {
		return models.ShipmentStatus{}, false, errors.Wrap(err, "get tracking")
	}
	if !ok {
		// garbage-collected between the insert and the read
		if _, err := e.repo.InsertTracking(ctx, models.WriteFromStatus(st, e.now())); err != nil {
			return models.ShipmentStatus{}, false, errors.Wrap(err, "insert tracking")
		}
		return st, true, nil
	}
	slog.Info("first track lost to stored row", "tracking_id", trackingID, "fetched", st.StatusText, "stored", cur.StatusOr(st.StatusText))
	return statusFromRow(cur, st), true, nil
}

// statusFromRow renders a stored row as a status, taking what the row lacks from fetched.
func statusFromRow(t *models.Tracking, fetched models.ShipmentStatus) models.ShipmentStatus {
	if t.LastStatus == nil {
		return fetched
	}
	return models.ShipmentStatus{
		TrackingID:     t.TrackingID,
		StatusText:     *t.LastStatus,
		EventTimestamp: t.DisplayTimestamp,
		Origin:         t.Origin,
		Destination:    t.Destination,
	}
}

func (e *Engine) OnPollResult(ctx context.Context, st models.ShipmentStatus) (Outcome, error) {
	return e.reconcile(ctx, SourcePoll, st)
}

func (e *Engine) OnWebhookUpdate(ctx context.Context, st models.ShipmentStatus) (Outcome, error) {
	return e.reconcile(ctx, SourceWebhook, st)
}

func (e *Engine) reconcile(ctx context.Context, src Source, st models.ShipmentStatus) (out Outcome, err error) {
	st.TrackingID = models.CanonicalTrackingID(st.TrackingID)
	ctx, span := tracer.Start(ctx, "tracksync.reconcile")
	span.SetAttributes(attribute.String("tracking_id", st.TrackingID), attribute.String("source", string(src)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			metrics.Reconciliations.WithLabelValues(string(src), string(out)).Inc()
			span.SetAttributes(attribute.String("outcome", string(out)))
		}
		span.End()
	}()

	if st.TrackingID == "" || !st.HasStatus() {
		return OutcomeInvalid, nil
	}

	prev, applied, err := e.apply(ctx, st)
	if err != nil || applied != OutcomeApplied {
		return applied, err
	}

	subs, err := e.repo.ListSubscribers(ctx, st.TrackingID)
	if err != nil {
		// the row is already written; the next change will still notify
		slog.Error("list subscribers", "tracking_id", st.TrackingID, "source", src, "error", err.Error())
		return OutcomeApplied, nil
	}

	initial := prev == nil
	for _, id := range subs {
		e.notifier.Notify(ctx, id, st, initial)
	}
	slog.Info("status changed",
		"tracking_id", st.TrackingID,
		"source", src,
		"from", statusOrNull(prev),
		"to", st.StatusText,
		"subscribers", len(subs),
	)
	return OutcomeApplied, nil
}

// apply runs read-compare-write under the per-id lock and returns the previous status.
func (e *Engine) apply(ctx context.Context, st models.ShipmentStatus) (*string, Outcome, error) {
	unlock, err := e.locker.Lock(ctx, st.TrackingID)
	if err != nil {
		return nil, "", errors.Wrap(err, "lock tracking")
	}
	defer unlock()

	cur, ok, err := e.repo.GetTracking(ctx, st.TrackingID)
	if err != nil {
		return nil, "", errors.Wrap(err, "get tracking")
	}
	if !ok {
		return nil, OutcomeUntracked, nil
	}
	if cur.LastStatus != nil && *cur.LastStatus == st.StatusText {
		return cur.LastStatus, OutcomeUnchanged, nil
	}

	swapped, err := e.repo.CompareAndSetStatus(ctx, models.WriteFromStatus(st, e.now()), cur.LastStatus)
	if err != nil {
		return nil, "", errors.Wrap(err, "cas tracking")
	}
	if !swapped {
		return cur.LastStatus, OutcomeSuperseded, nil
	}
	return cur.LastStatus, OutcomeApplied, nil
}

func statusOrNull(s *string) string {
	if s == nil {
		return "<null>"
	}
	return *s
}
