package pgtracking

import (
	"context"
	"time"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// AddSubscription is idempotent; created is false when the pair already existed.
func (s *Storage) AddSubscription(ctx context.Context, subscriberID int64, trackingID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO subscriptions (subscriber_id, tracking_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (subscriber_id, tracking_id) DO NOTHING
`, subscriberID, trackingID, time.Now().UTC())
	if err != nil {
		return false, errors.Wrap(err, "insert subscription")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) RemoveSubscription(ctx context.Context, subscriberID int64, trackingID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM subscriptions WHERE subscriber_id = $1 AND tracking_id = $2`, subscriberID, trackingID)
	if err != nil {
		return 0, errors.Wrap(err, "delete subscription")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) CountSubscriptions(ctx context.Context, trackingID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM subscriptions WHERE tracking_id = $1`, trackingID).Scan(&n)
	return n, errors.Wrap(err, "count subscriptions")
}

func (s *Storage) ListSubscriptions(ctx context.Context, subscriberID int64) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT tracking_id FROM subscriptions WHERE subscriber_id = $1 ORDER BY tracking_id`, subscriberID)
	if err != nil {
		return nil, errors.Wrap(err, "select subscriptions")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, errors.Wrap(err, "collect subscriptions")
}

func (s *Storage) ListSubscribers(ctx context.Context, trackingID string) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT subscriber_id FROM subscriptions WHERE tracking_id = $1 ORDER BY subscriber_id`, trackingID)
	if err != nil {
		return nil, errors.Wrap(err, "select subscribers")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	return ids, errors.Wrap(err, "collect subscribers")
}

func (s *Storage) UpsertSubscriber(ctx context.Context, sub models.Subscriber) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO subscribers (subscriber_id, username, first_name, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (subscriber_id) DO UPDATE SET
  username = EXCLUDED.username,
  first_name = EXCLUDED.first_name,
  updated_at = EXCLUDED.updated_at
`, sub.SubscriberID, sub.Username, sub.FirstName, sub.UpdatedAt.UTC())
	return errors.Wrap(err, "upsert subscriber")
}
