package pgshipment

import (
	"context"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) LookupBranchManifest(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error) {
	return s.lookupManifestTable(ctx, "branch_manifests", trackingCode)
}

func (s *Storage) LookupCentralManifest(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error) {
	return s.lookupManifestTable(ctx, "central_manifests", trackingCode)
}

func (s *Storage) lookupManifestTable(ctx context.Context, table, trackingCode string) (*models.ManifestDescriptor, bool, error) {
	var d models.ManifestDescriptor
	err := s.db.QueryRow(ctx, `
SELECT tracking_code, sender_name, receiver_name, receiver_city, receiver_district
FROM `+table+`
WHERE tracking_code = $1
`, trackingCode).Scan(
		&d.TrackingCode, &d.SenderName, &d.ReceiverName, &d.ReceiverCity, &d.ReceiverDistrict,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select "+table)
	}
	return &d, true, nil
}
