package pgshipment

import (
	"context"
	"time"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  tracking_code, current_status, courier_ref,
  sender_name, receiver_name, receiver_city, receiver_district, origin,
  created_at, updated_at`

func (s *Storage) GetShipment(ctx context.Context, trackingCode string) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE tracking_code = $1
`, trackingCode)

	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrShipmentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

func (s *Storage) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  tracking_code, current_status, courier_ref,
  sender_name, receiver_name, receiver_city, receiver_district, origin,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (tracking_code)
DO UPDATE SET updated_at = shipments.updated_at
RETURNING`+shipmentColumns+`
`, in.TrackingCode, in.CurrentStatus, in.CourierRef,
		in.SenderName, in.ReceiverName, in.ReceiverCity, in.ReceiverDistrict, in.Origin,
		now)

	sh, err := scanShipment(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert shipment")
	}
	return sh, nil
}

// UpdateShipmentStatus is the primary write of a status transition. The
// courier ref is only overwritten when a non-nil value is supplied.
func (s *Storage) UpdateShipmentStatus(ctx context.Context, trackingCode, status string, courierRef *string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  current_status = $2,
  courier_ref = COALESCE($3, courier_ref),
  updated_at = now()
WHERE tracking_code = $1
`, trackingCode, status, courierRef)
	if err != nil {
		return errors.Wrap(err, "update shipment status")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrShipmentNotFound
	}
	return nil
}

// SetShipmentStatus writes the status field directly, bypassing the
// transition service. Used by the reconciliation repair pass, which must not
// append a history entry for a status already present in the log.
func (s *Storage) SetShipmentStatus(ctx context.Context, trackingCode, status string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments SET current_status = $2, updated_at = now() WHERE tracking_code = $1
`, trackingCode, status)
	if err != nil {
		return errors.Wrap(err, "set shipment status")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrShipmentNotFound
	}
	return nil
}

// ListStaleByCourier returns the courier's non-delivered shipments created
// before the cutoff, oldest first.
func (s *Storage) ListStaleByCourier(ctx context.Context, courierRef string, cutoff time.Time) ([]*models.Shipment, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE courier_ref = $1
  AND current_status <> $2
  AND created_at < $3
ORDER BY created_at ASC
`, courierRef, models.StatusDelivered, cutoff.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "select stale shipments")
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan stale shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// BulkSetStatus updates one chunk of tracking codes in a single statement
// and returns the number of rows touched.
func (s *Storage) BulkSetStatus(ctx context.Context, trackingCodes []string, status string) (int64, error) {
	if len(trackingCodes) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
UPDATE shipments SET current_status = $2, updated_at = now() WHERE tracking_code = ANY($1)
`, trackingCodes, status)
	if err != nil {
		return 0, errors.Wrap(err, "bulk set status")
	}
	return tag.RowsAffected(), nil
}

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	var courierRef *string
	if err := row.Scan(
		&sh.TrackingCode, &sh.CurrentStatus, &courierRef,
		&sh.SenderName, &sh.ReceiverName, &sh.ReceiverCity, &sh.ReceiverDistrict, &sh.Origin,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sh.CourierRef = courierRef
	return &sh, nil
}
