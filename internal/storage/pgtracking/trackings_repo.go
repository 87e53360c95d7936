package pgtracking

import (
	"context"

	"github.com/BearBump/TrackBot/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const trackingColumns = `
  tracking_id, last_status, last_update_time,
  origin, origin_region, destination, destination_region,
  display_timestamp, created_at`

func scanTracking(row pgx.Row) (*models.Tracking, error) {
	var t models.Tracking
	if err := row.Scan(
		&t.TrackingID, &t.LastStatus, &t.LastUpdateTime,
		&t.Origin.Name, &t.Origin.RegionCode, &t.Destination.Name, &t.Destination.RegionCode,
		&t.DisplayTimestamp, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Storage) GetTracking(ctx context.Context, trackingID string) (*models.Tracking, bool, error) {
	t, err := scanTracking(s.db.QueryRow(ctx, `SELECT`+trackingColumns+` FROM trackings WHERE tracking_id = $1`, trackingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select tracking")
	}
	return t, true, nil
}

func (s *Storage) GetTrackings(ctx context.Context, ids []string) ([]*models.Tracking, error) {
	if len(ids) == 0 {
		return []*models.Tracking{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT`+trackingColumns+` FROM trackings WHERE tracking_id = ANY($1) ORDER BY tracking_id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select trackings")
	}
	defer rows.Close()

	out := make([]*models.Tracking, 0, len(ids))
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracking")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// InsertTracking creates the row for w and reports whether it did. An existing
// row is left untouched.
func (s *Storage) InsertTracking(ctx context.Context, w models.TrackingWrite) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO trackings (
  tracking_id, last_status, last_update_time,
  origin, origin_region, destination, destination_region,
  display_timestamp, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (tracking_id) DO NOTHING
`, w.TrackingID, w.Status, w.UpdatedAt.UTC(),
		w.Origin.Name, w.Origin.RegionCode, w.Destination.Name, w.Destination.RegionCode,
		w.DisplayTimestamp, w.CreatedAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "insert tracking")
	}
	return tag.RowsAffected() == 1, nil
}

// CompareAndSetStatus writes w only if the stored status still equals expected
// (nil matches a row that never had a status). It reports whether the row was written.
func (s *Storage) CompareAndSetStatus(ctx context.Context, w models.TrackingWrite, expected *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE trackings SET
  last_status = $2,
  last_update_time = $3,
  origin = $4,
  origin_region = $5,
  destination = $6,
  destination_region = $7,
  display_timestamp = $8
WHERE tracking_id = $1
  AND last_status IS NOT DISTINCT FROM $9
`, w.TrackingID, w.Status, w.UpdatedAt.UTC(),
		w.Origin.Name, w.Origin.RegionCode, w.Destination.Name, w.Destination.RegionCode,
		w.DisplayTimestamp, expected)
	if err != nil {
		return false, errors.Wrap(err, "cas tracking")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) DeleteTracking(ctx context.Context, trackingID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM trackings WHERE tracking_id = $1`, trackingID)
	return errors.Wrap(err, "delete tracking")
}

// ListTrackedIDs returns ids that still have at least one subscription.
func (s *Storage) ListTrackedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
SELECT t.tracking_id
FROM trackings t
WHERE EXISTS (SELECT 1 FROM subscriptions s WHERE s.tracking_id = t.tracking_id)
ORDER BY t.tracking_id
`)
	if err != nil {
		return nil, errors.Wrap(err, "select tracked ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, errors.Wrap(err, "collect tracked ids")
}
