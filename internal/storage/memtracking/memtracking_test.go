package memtracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/stretchr/testify/require"
)

func insert(t *testing.T, s *Storage, w models.TrackingWrite) {
	t.Helper()
	ok, err := s.InsertTracking(context.Background(), w)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStorage_InsertKeepsExistingRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	insert(t, s, models.TrackingWrite{TrackingID: "A", Status: "S0", UpdatedAt: t0, CreatedAt: t0})
	ok, err := s.InsertTracking(ctx, models.TrackingWrite{TrackingID: "A", Status: "S1", UpdatedAt: t0.Add(time.Hour), CreatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := s.GetTracking(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "S0", got.StatusOr(""))
	require.Equal(t, t0, got.CreatedAt)
	require.Equal(t, t0, got.LastUpdateTime)

	// returned rows are copies
	*got.LastStatus = "mutated"
	again, _, _ := s.GetTracking(ctx, "A")
	require.Equal(t, "S0", again.StatusOr(""))
}

func TestStorage_CompareAndSetStatus(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.CompareAndSetStatus(ctx, models.TrackingWrite{TrackingID: "missing", Status: "x"}, nil)
	require.NoError(t, err)
	require.False(t, ok, "cas never creates rows")

	insert(t, s, models.TrackingWrite{TrackingID: "A", Status: "S0"})
	s0, s1 := "S0", "S1"

	ok, _ = s.CompareAndSetStatus(ctx, models.TrackingWrite{TrackingID: "A", Status: "S2"}, &s1)
	require.False(t, ok)
	ok, _ = s.CompareAndSetStatus(ctx, models.TrackingWrite{TrackingID: "A", Status: "S1"}, nil)
	require.False(t, ok)
	ok, _ = s.CompareAndSetStatus(ctx, models.TrackingWrite{TrackingID: "A", Status: "S1"}, &s0)
	require.True(t, ok)

	got, _, _ := s.GetTracking(ctx, "A")
	require.Equal(t, "S1", got.StatusOr(""))
}

func TestStorage_CompareAndSetStatus_SingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	insert(t, s, models.TrackingWrite{TrackingID: "A", Status: "S0"})
	s0 := "S0"

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := s.CompareAndSetStatus(ctx, models.TrackingWrite{TrackingID: "A", Status: "S1"}, &s0)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestStorage_Subscriptions(t *testing.T) {
	s := New()
	ctx := context.Background()
	insert(t, s, models.TrackingWrite{TrackingID: "X", Status: "S0"})
	insert(t, s, models.TrackingWrite{TrackingID: "ORPHAN", Status: "S0"})

	created, _ := s.AddSubscription(ctx, 2, "X")
	require.True(t, created)
	created, _ = s.AddSubscription(ctx, 2, "X")
	require.False(t, created)
	_, _ = s.AddSubscription(ctx, 1, "X")
	_, _ = s.AddSubscription(ctx, 1, "Y")

	ids, _ := s.ListTrackedIDs(ctx)
	require.Equal(t, []string{"X"}, ids, "only rows with subscriptions")

	subs, _ := s.ListSubscribers(ctx, "X")
	require.Equal(t, []int64{1, 2}, subs)
	mine, _ := s.ListSubscriptions(ctx, 1)
	require.Equal(t, []string{"X", "Y"}, mine)

	rows, _ := s.GetTrackings(ctx, mine)
	require.Len(t, rows, 1)

	n, _ := s.RemoveSubscription(ctx, 1, "X")
	require.Equal(t, int64(1), n)
	n, _ = s.RemoveSubscription(ctx, 1, "X")
	require.Zero(t, n)
	cnt, _ := s.CountSubscriptions(ctx, "X")
	require.Equal(t, int64(1), cnt)

	empty, _ := s.ListSubscribers(ctx, "nothing")
	require.Empty(t, empty)

	require.NoError(t, s.UpsertSubscriber(ctx, models.Subscriber{SubscriberID: 1, Username: "u"}))
	sub, ok := s.Subscriber(1)
	require.True(t, ok)
	require.Equal(t, "u", sub.Username)
	require.False(t, sub.UpdatedAt.IsZero())
}
