package trackings

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/TrackBot/internal/cache"
	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidTrackingID = errors.New("invalid tracking id")
	ErrUnresolved        = errors.New("tracking id could not be resolved")
	ErrNotSubscribed     = errors.New("not subscribed")
)

const (
	minIDLen = 5
	maxIDLen = 40
)

type Repository interface {
	GetTracking(ctx context.Context, trackingID string) (*models.Tracking, bool, error)
	GetTrackings(ctx context.Context, ids []string) ([]*models.Tracking, error)
	DeleteTracking(ctx context.Context, trackingID string) error
	AddSubscription(ctx context.Context, subscriberID int64, trackingID string) (bool, error)
	RemoveSubscription(ctx context.Context, subscriberID int64, trackingID string) (int64, error)
	CountSubscriptions(ctx context.Context, trackingID string) (int64, error)
	ListSubscriptions(ctx context.Context, subscriberID int64) ([]string, error)
	UpsertSubscriber(ctx context.Context, sub models.Subscriber) error
}

// FirstTracker records an identifier the system has not seen yet.
type FirstTracker interface {
	OnFirstTrack(ctx context.Context, trackingID string) (models.ShipmentStatus, bool, error)
}

type Service struct {
	repo     Repository
	engine   FirstTracker
	provider carrier.Provider
	cache    cache.BytesCache
	infoTTL  time.Duration
	group    singleflight.Group
}

func New(repo Repository, engine FirstTracker, provider carrier.Provider, c cache.BytesCache, infoTTL time.Duration) *Service {
	return &Service{repo: repo, engine: engine, provider: provider, cache: c, infoTTL: infoTTL}
}

// NormalizeTrackingID trims and upper-cases raw and checks it against [A-Z0-9-]{5,40}.
func NormalizeTrackingID(raw string) (string, error) {
	id := models.CanonicalTrackingID(raw)
	if len(id) < minIDLen || len(id) > maxIDLen {
		return "", ErrInvalidTrackingID
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '-' {
			return "", ErrInvalidTrackingID
		}
	}
	return id, nil
}

type TrackResult struct {
	TrackingID string
	// Status is set when the identifier was fetched from the provider.
	Status *models.ShipmentStatus
	// Cached is set when the identifier was already stored; no fetch happened.
	Cached            *models.Tracking
	AlreadySubscribed bool
}

// Track subscribes sub to raw. Known ids are answered from storage, unknown ones
// go through the provider; ErrUnresolved means nothing was written.
func (s *Service) Track(ctx context.Context, sub models.Subscriber, raw string) (TrackResult, error) {
	id, err := NormalizeTrackingID(raw)
	if err != nil {
		return TrackResult{}, err
	}
	res := TrackResult{TrackingID: id}

	cur, ok, err := s.repo.GetTracking(ctx, id)
	if err != nil {
		return res, errors.Wrap(err, "get tracking")
	}

	if ok {
		created, err := s.repo.AddSubscription(ctx, sub.SubscriberID, id)
		if err != nil {
			return res, errors.Wrap(err, "add subscription")
		}
		res.AlreadySubscribed = !created
		res.Cached = cur

		// the row may have been garbage-collected between the read and the insert
		if _, still, err := s.repo.GetTracking(ctx, id); err == nil && !still {
			st, found, err := s.engine.OnFirstTrack(ctx, id)
			if err != nil {
				return res, err
			}
			if !found {
				_, _ = s.repo.RemoveSubscription(ctx, sub.SubscriberID, id)
				return res, ErrUnresolved
			}
			res.Cached, res.Status = nil, &st
		}
	} else {
		st, found, err := s.engine.OnFirstTrack(ctx, id)
		if err != nil {
			return res, err
		}
		if !found {
			return res, ErrUnresolved
		}
		created, err := s.repo.AddSubscription(ctx, sub.SubscriberID, id)
		if err != nil {
			return res, errors.Wrap(err, "add subscription")
		}
		res.AlreadySubscribed = !created
		res.Status = &st
	}

	if err := s.repo.UpsertSubscriber(ctx, sub); err != nil {
		slog.Warn("upsert subscriber", "subscriber_id", sub.SubscriberID, "error", err.Error())
	}
	return res, nil
}

// Untrack removes the subscription and drops the tracking when nobody is left.
func (s *Service) Untrack(ctx context.Context, subscriberID int64, raw string) (string, error) {
	id, err := NormalizeTrackingID(raw)
	if err != nil {
		return "", err
	}

	n, err := s.repo.RemoveSubscription(ctx, subscriberID, id)
	if err != nil {
		return id, errors.Wrap(err, "remove subscription")
	}
	if n == 0 {
		return id, ErrNotSubscribed
	}

	left, err := s.repo.CountSubscriptions(ctx, id)
	if err != nil {
		return id, errors.Wrap(err, "count subscriptions")
	}
	if left > 0 {
		return id, nil
	}

	if err := s.repo.DeleteTracking(ctx, id); err != nil {
		return id, errors.Wrap(err, "delete tracking")
	}
	if r, ok := s.provider.(carrier.Registrar); ok {
		if err := r.Deregister(ctx, id); err != nil {
			slog.Warn("deregister", "tracking_id", id, "error", err.Error())
		}
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, infoKey(id))
	}
	slog.Info("tracking removed", "tracking_id", id)
	return id, nil
}

// List returns the subscriber's ids (sorted) and the stored rows for them.
func (s *Service) List(ctx context.Context, subscriberID int64) ([]string, []*models.Tracking, error) {
	ids, err := s.repo.ListSubscriptions(ctx, subscriberID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list subscriptions")
	}
	if len(ids) == 0 {
		return ids, nil, nil
	}
	rows, err := s.repo.GetTrackings(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get trackings")
	}
	return ids, rows, nil
}

// Info fetches live detail. It never touches subscriptions or the stored status.
func (s *Service) Info(ctx context.Context, raw string) (models.ShipmentStatus, error) {
	id, err := NormalizeTrackingID(raw)
	if err != nil {
		return models.ShipmentStatus{}, err
	}

	if s.cache != nil && s.infoTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, infoKey(id)); err == nil && ok {
			var st models.ShipmentStatus
			if json.Unmarshal(b, &st) == nil {
				return st, nil
			}
		}
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		st, ok := s.provider.Fetch(ctx, id)
		if !ok {
			return nil, ErrUnresolved
		}
		st.TrackingID = id
		if s.cache != nil && s.infoTTL > 0 {
			b, _ := json.Marshal(st)
			_ = s.cache.Set(ctx, infoKey(id), b, s.infoTTL)
		}
		return st, nil
	})
	if err != nil {
		return models.ShipmentStatus{}, err
	}
	return v.(models.ShipmentStatus), nil
}

func infoKey(id string) string {
	return "info:" + id
}
