package pgshipment

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shipments (
  tracking_code TEXT PRIMARY KEY,
  current_status TEXT NOT NULL,
  courier_ref TEXT NULL,
  sender_name TEXT NOT NULL DEFAULT '',
  receiver_name TEXT NOT NULL DEFAULT '',
  receiver_city TEXT NOT NULL DEFAULT '',
  receiver_district TEXT NOT NULL DEFAULT '',
  origin TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_courier_status ON shipments(courier_ref, current_status)`,
		`
CREATE TABLE IF NOT EXISTS shipment_history (
  id BIGSERIAL PRIMARY KEY,
  tracking_code TEXT NOT NULL REFERENCES shipments(tracking_code) ON DELETE CASCADE,
  status TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  actor TEXT NOT NULL DEFAULT '',
  courier_ref TEXT NULL,
  proof_ref TEXT NULL,
  latitude DOUBLE PRECISION NULL,
  longitude DOUBLE PRECISION NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		// Also serves the latest-entry lookup that de-duplicates retried
		// appends (see AppendHistory).
		`CREATE INDEX IF NOT EXISTS idx_shipment_history_code_created ON shipment_history(tracking_code, created_at DESC, id DESC)`,
		`
CREATE TABLE IF NOT EXISTS bookings (
  id BIGSERIAL PRIMARY KEY,
  tracking_code TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'outstanding',
  sender_name TEXT NOT NULL DEFAULT '',
  receiver_name TEXT NOT NULL DEFAULT '',
  receiver_city TEXT NOT NULL DEFAULT '',
  receiver_district TEXT NOT NULL DEFAULT '',
  weight_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
  price_per_kg BIGINT NOT NULL DEFAULT 0,
  subtotal BIGINT NOT NULL DEFAULT 0,
  admin_surcharge BIGINT NOT NULL DEFAULT 0,
  transit_surcharge BIGINT NOT NULL DEFAULT 0,
  total BIGINT NOT NULL DEFAULT 0,
  rejection_reason TEXT NULL,
  verified_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS manifest_records (
  id BIGSERIAL PRIMARY KEY,
  tracking_code TEXT NOT NULL UNIQUE,
  booking_id BIGINT NULL REFERENCES bookings(id),
  sender_name TEXT NOT NULL DEFAULT '',
  receiver_name TEXT NOT NULL DEFAULT '',
  receiver_city TEXT NOT NULL DEFAULT '',
  receiver_district TEXT NOT NULL DEFAULT '',
  weight_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
  price_per_kg BIGINT NOT NULL DEFAULT 0,
  subtotal BIGINT NOT NULL DEFAULT 0,
  admin_surcharge BIGINT NOT NULL DEFAULT 0,
  transit_surcharge BIGINT NOT NULL DEFAULT 0,
  total BIGINT NOT NULL DEFAULT 0,
  settlement_status TEXT NOT NULL DEFAULT 'outstanding',
  deduction_amount BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL
)`,
		// Read-only descriptive lookups consulted by the ingestion handler
		// when a scanned code has no shipment yet.
		`
CREATE TABLE IF NOT EXISTS branch_manifests (
  tracking_code TEXT PRIMARY KEY,
  sender_name TEXT NOT NULL DEFAULT '',
  receiver_name TEXT NOT NULL DEFAULT '',
  receiver_city TEXT NOT NULL DEFAULT '',
  receiver_district TEXT NOT NULL DEFAULT ''
)`,
		`
CREATE TABLE IF NOT EXISTS central_manifests (
  tracking_code TEXT PRIMARY KEY,
  sender_name TEXT NOT NULL DEFAULT '',
  receiver_name TEXT NOT NULL DEFAULT '',
  receiver_city TEXT NOT NULL DEFAULT '',
  receiver_district TEXT NOT NULL DEFAULT ''
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
