package pgshipment

import (
	"context"
	"time"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const bookingColumns = `
  id, tracking_code, status, payment_status,
  sender_name, receiver_name, receiver_city, receiver_district,
  weight_kg, price_per_kg, subtotal, admin_surcharge, transit_surcharge, total,
  rejection_reason, verified_at, created_at, updated_at`

func (s *Storage) GetBooking(ctx context.Context, id uint64) (*models.Booking, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+bookingColumns+`
FROM bookings
WHERE id = $1
`, id)

	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select booking")
	}
	return b, nil
}

// PromoteBooking marks a pending booking verified with its final pricing and
// creates the manifest record, both inside one transaction. If the manifest
// insert fails the booking update rolls back, so a verified booking without
// a manifest record can never be observed.
func (s *Storage) PromoteBooking(ctx context.Context, b *models.Booking) (*models.ManifestRecord, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
UPDATE bookings
SET
  status = $2,
  weight_kg = $3,
  price_per_kg = $4,
  subtotal = $5,
  admin_surcharge = $6,
  transit_surcharge = $7,
  total = $8,
  verified_at = $9,
  updated_at = $9
WHERE id = $1 AND status = $10
`, b.ID, models.BookingStatusVerified,
		b.WeightKg, b.PricePerKg, b.Subtotal, b.AdminSurcharge, b.TransitSurcharge, b.Total,
		now, models.BookingStatusPending)
	if err != nil {
		return nil, errors.Wrap(err, "update booking")
	}
	if tag.RowsAffected() == 0 {
		// The booking raced away from pending (or never existed).
		return nil, models.ErrInvalidTransition
	}

	var rec models.ManifestRecord
	bookingID := b.ID
	err = tx.QueryRow(ctx, `
INSERT INTO manifest_records (
  tracking_code, booking_id,
  sender_name, receiver_name, receiver_city, receiver_district,
  weight_kg, price_per_kg, subtotal, admin_surcharge, transit_surcharge, total,
  settlement_status, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING id, created_at
`, b.TrackingCode, bookingID,
		b.SenderName, b.ReceiverName, b.ReceiverCity, b.ReceiverDistrict,
		b.WeightKg, b.PricePerKg, b.Subtotal, b.AdminSurcharge, b.TransitSurcharge, b.Total,
		b.PaymentStatus, now).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert manifest record")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	rec.TrackingCode = b.TrackingCode
	rec.BookingID = &bookingID
	rec.SenderName = b.SenderName
	rec.ReceiverName = b.ReceiverName
	rec.ReceiverCity = b.ReceiverCity
	rec.ReceiverDistrict = b.ReceiverDistrict
	rec.WeightKg = b.WeightKg
	rec.PricePerKg = b.PricePerKg
	rec.Subtotal = b.Subtotal
	rec.AdminSurcharge = b.AdminSurcharge
	rec.TransitSurcharge = b.TransitSurcharge
	rec.Total = b.Total
	rec.SettlementStatus = b.PaymentStatus
	return &rec, nil
}

func (s *Storage) RejectBooking(ctx context.Context, id uint64, reason string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE bookings
SET status = $2, rejection_reason = $3, updated_at = now()
WHERE id = $1 AND status = $4
`, id, models.BookingStatusRejected, reason, models.BookingStatusPending)
	if err != nil {
		return errors.Wrap(err, "reject booking")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// CreateManifestRecord handles direct entry of walk-in shipments that never
// went through a booking.
func (s *Storage) CreateManifestRecord(ctx context.Context, rec *models.ManifestRecord) (*models.ManifestRecord, error) {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO manifest_records (
  tracking_code, booking_id,
  sender_name, receiver_name, receiver_city, receiver_district,
  weight_kg, price_per_kg, subtotal, admin_surcharge, transit_surcharge, total,
  settlement_status, created_at
)
VALUES ($1,NULL,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING id, created_at
`, rec.TrackingCode,
		rec.SenderName, rec.ReceiverName, rec.ReceiverCity, rec.ReceiverDistrict,
		rec.WeightKg, rec.PricePerKg, rec.Subtotal, rec.AdminSurcharge, rec.TransitSurcharge, rec.Total,
		rec.SettlementStatus, now).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert manifest record")
	}
	return rec, nil
}

func (s *Storage) GetManifestRecord(ctx context.Context, trackingCode string) (*models.ManifestRecord, error) {
	var rec models.ManifestRecord
	var bookingID *uint64
	err := s.db.QueryRow(ctx, `
SELECT
  id, tracking_code, booking_id,
  sender_name, receiver_name, receiver_city, receiver_district,
  weight_kg, price_per_kg, subtotal, admin_surcharge, transit_surcharge, total,
  settlement_status, deduction_amount, created_at
FROM manifest_records
WHERE tracking_code = $1
`, trackingCode).Scan(
		&rec.ID, &rec.TrackingCode, &bookingID,
		&rec.SenderName, &rec.ReceiverName, &rec.ReceiverCity, &rec.ReceiverDistrict,
		&rec.WeightKg, &rec.PricePerKg, &rec.Subtotal, &rec.AdminSurcharge, &rec.TransitSurcharge, &rec.Total,
		&rec.SettlementStatus, &rec.DeductionAmount, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrShipmentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select manifest record")
	}
	rec.BookingID = bookingID
	return &rec, nil
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	var rejectionReason *string
	var verifiedAt *time.Time
	if err := row.Scan(
		&b.ID, &b.TrackingCode, &b.Status, &b.PaymentStatus,
		&b.SenderName, &b.ReceiverName, &b.ReceiverCity, &b.ReceiverDistrict,
		&b.WeightKg, &b.PricePerKg, &b.Subtotal, &b.AdminSurcharge, &b.TransitSurcharge, &b.Total,
		&rejectionReason, &verifiedAt, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.RejectionReason = rejectionReason
	b.VerifiedAt = verifiedAt
	return &b, nil
}
