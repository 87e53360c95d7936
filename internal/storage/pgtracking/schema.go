package pgtracking

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS trackings (
  tracking_id TEXT PRIMARY KEY,
  last_status TEXT NULL,
  last_update_time TIMESTAMPTZ NOT NULL,
  origin TEXT NOT NULL DEFAULT 'Unknown',
  origin_region TEXT NOT NULL DEFAULT '',
  destination TEXT NOT NULL DEFAULT 'Unknown',
  destination_region TEXT NOT NULL DEFAULT '',
  display_timestamp TEXT NOT NULL DEFAULT 'unknown',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS subscriptions (
  subscriber_id BIGINT NOT NULL,
  tracking_id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (subscriber_id, tracking_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_tracking_id ON subscriptions(tracking_id)`,
		`
CREATE TABLE IF NOT EXISTS subscribers (
  subscriber_id BIGINT PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  first_name TEXT NOT NULL DEFAULT '',
  updated_at TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
