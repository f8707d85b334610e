package pgshipment

import (
	"context"
	"time"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/pkg/errors"
)

// AppendHistory inserts one audit entry. When the latest entry for the code
// already carries the same status and actor, the insert is a retried scan:
// it is absorbed and inserted=false is returned, which callers treat as
// success. Older entries never block an insert, so a status legitimately
// revisited later (out_for_delivery after an exception) is recorded again.
func (s *Storage) AppendHistory(ctx context.Context, e models.HistoryEntry) (inserted bool, err error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO shipment_history (
  tracking_code, status, location, notes, actor,
  courier_ref, proof_ref, latitude, longitude, created_at
)
SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9, now()
WHERE NOT EXISTS (
  SELECT 1
  FROM (
    SELECT status, actor
    FROM shipment_history
    WHERE tracking_code = $1
    ORDER BY created_at DESC, id DESC
    LIMIT 1
  ) last
  WHERE last.status = $2 AND last.actor = $5
)
`, e.TrackingCode, e.Status, e.Location, e.Notes, e.Actor,
		e.CourierRef, e.ProofRef, e.Latitude, e.Longitude)
	if err != nil {
		return false, errors.Wrap(err, "insert history entry")
	}
	return tag.RowsAffected() > 0, nil
}

// BulkAppendHistory writes one entry per tracking code inside a single
// transaction, with the same de-duplication as AppendHistory.
func (s *Storage) BulkAppendHistory(ctx context.Context, trackingCodes []string, status, location, notes, actor string) error {
	if len(trackingCodes) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, code := range trackingCodes {
		_, err := tx.Exec(ctx, `
INSERT INTO shipment_history (tracking_code, status, location, notes, actor, created_at)
SELECT $1,$2,$3,$4,$5, now()
WHERE NOT EXISTS (
  SELECT 1
  FROM (
    SELECT status, actor
    FROM shipment_history
    WHERE tracking_code = $1
    ORDER BY created_at DESC, id DESC
    LIMIT 1
  ) last
  WHERE last.status = $2 AND last.actor = $5
)
`, code, status, location, notes, actor)
		if err != nil {
			return errors.Wrap(err, "insert bulk history entry")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// LatestHistoryStatus returns the status of the most recently created entry
// for the tracking code, or ok=false when the log is empty.
func (s *Storage) LatestHistoryStatus(ctx context.Context, trackingCode string) (status string, ok bool, err error) {
	rows, err := s.db.Query(ctx, `
SELECT status
FROM shipment_history
WHERE tracking_code = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`, trackingCode)
	if err != nil {
		return "", false, errors.Wrap(err, "select latest history status")
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, errors.Wrap(rows.Err(), "rows")
	}
	if err := rows.Scan(&status); err != nil {
		return "", false, errors.Wrap(err, "scan latest history status")
	}
	return status, true, nil
}

func (s *Storage) ListHistory(ctx context.Context, trackingCode string, limit, offset int) ([]*models.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, tracking_code, status, location, notes, actor,
  courier_ref, proof_ref, latitude, longitude, created_at
FROM shipment_history
WHERE tracking_code = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, trackingCode, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select history")
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var courierRef, proofRef *string
		var lat, lon *float64
		var createdAt time.Time
		if err := rows.Scan(
			&e.ID, &e.TrackingCode, &e.Status, &e.Location, &e.Notes, &e.Actor,
			&courierRef, &proofRef, &lat, &lon, &createdAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan history entry")
		}
		e.CourierRef = courierRef
		e.ProofRef = proofRef
		e.Latitude = lat
		e.Longitude = lon
		e.CreatedAt = createdAt
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
