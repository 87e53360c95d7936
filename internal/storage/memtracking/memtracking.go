// Package memtracking is an in-memory store with the same semantics as pgtracking.
package memtracking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
)

type pair struct {
	subscriber int64
	tracking   string
}

type Storage struct {
	mu          sync.RWMutex
	trackings   map[string]models.Tracking
	subs        map[pair]time.Time
	subscribers map[int64]models.Subscriber
}

func New() *Storage {
	return &Storage{
		trackings:   make(map[string]models.Tracking),
		subs:        make(map[pair]time.Time),
		subscribers: make(map[int64]models.Subscriber),
	}
}

func (s *Storage) Ping(context.Context) error { return nil }

func (s *Storage) Close() {}

func clone(t models.Tracking) *models.Tracking {
	if t.LastStatus != nil {
		v := *t.LastStatus
		t.LastStatus = &v
	}
	return &t
}

func (s *Storage) GetTracking(_ context.Context, trackingID string) (*models.Tracking, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trackings[trackingID]
	if !ok {
		return nil, false, nil
	}
	return clone(t), true, nil
}

func (s *Storage) GetTrackings(_ context.Context, ids []string) ([]*models.Tracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tracking, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.trackings[id]; ok {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackingID < out[j].TrackingID })
	return out, nil
}

func apply(t *models.Tracking, w models.TrackingWrite) {
	status := w.Status
	t.LastStatus = &status
	t.LastUpdateTime = w.UpdatedAt
	t.Origin = w.Origin
	t.Destination = w.Destination
	t.DisplayTimestamp = w.DisplayTimestamp
}

func (s *Storage) InsertTracking(_ context.Context, w models.TrackingWrite) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trackings[w.TrackingID]; ok {
		return false, nil
	}
	t := models.Tracking{TrackingID: w.TrackingID, CreatedAt: w.CreatedAt}
	apply(&t, w)
	s.trackings[w.TrackingID] = t
	return true, nil
}

func (s *Storage) CompareAndSetStatus(_ context.Context, w models.TrackingWrite, expected *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackings[w.TrackingID]
	if !ok {
		return false, nil
	}
	switch {
	case t.LastStatus == nil && expected == nil:
	case t.LastStatus != nil && expected != nil && *t.LastStatus == *expected:
	default:
		return false, nil
	}
	apply(&t, w)
	s.trackings[w.TrackingID] = t
	return true, nil
}

func (s *Storage) DeleteTracking(_ context.Context, trackingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackings, trackingID)
	return nil
}

func (s *Storage) ListTrackedIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for p := range s.subs {
		if _, ok := s.trackings[p.tracking]; ok {
			seen[p.tracking] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *Storage) AddSubscription(_ context.Context, subscriberID int64, trackingID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := pair{subscriberID, trackingID}
	if _, ok := s.subs[p]; ok {
		return false, nil
	}
	s.subs[p] = time.Now()
	return true, nil
}

func (s *Storage) RemoveSubscription(_ context.Context, subscriberID int64, trackingID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := pair{subscriberID, trackingID}
	if _, ok := s.subs[p]; !ok {
		return 0, nil
	}
	delete(s.subs, p)
	return 1, nil
}

func (s *Storage) CountSubscriptions(_ context.Context, trackingID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for p := range s.subs {
		if p.tracking == trackingID {
			n++
		}
	}
	return n, nil
}

func (s *Storage) ListSubscriptions(_ context.Context, subscriberID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for p := range s.subs {
		if p.subscriber == subscriberID {
			seen[p.tracking] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *Storage) ListSubscribers(_ context.Context, trackingID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []int64{}
	for p := range s.subs {
		if p.tracking == trackingID {
			out = append(out, p.subscriber)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Storage) UpsertSubscriber(_ context.Context, sub models.Subscriber) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub.SubscriberID] = sub
	return nil
}

// Subscriber returns stored chat metadata; used by tests.
func (s *Storage) Subscriber(id int64) (models.Subscriber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[id]
	return sub, ok
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
