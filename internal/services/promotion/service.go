package promotion

import (
	"context"
	"math"
	"strings"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/ParcelHub/ShipCore/internal/pricing"
	"github.com/pkg/errors"
)

type Repository interface {
	GetBooking(ctx context.Context, id uint64) (*models.Booking, error)
	PromoteBooking(ctx context.Context, b *models.Booking) (*models.ManifestRecord, error)
	RejectBooking(ctx context.Context, id uint64, reason string) error
	CreateManifestRecord(ctx context.Context, rec *models.ManifestRecord) (*models.ManifestRecord, error)
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Promote verifies a pending booking with the operator's numeric overrides
// and creates its manifest record. Edits with a zero price or surcharge fall
// back to the destination's zone rate, so totals are always recomputed from
// the rate tables rather than trusted from the agent.
func (s *Service) Promote(ctx context.Context, bookingID uint64, edits models.BookingEdits) (*models.ManifestRecord, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusPending {
		return nil, models.ErrInvalidTransition
	}
	if edits.WeightKg <= 0 {
		return nil, errors.New("weight must be positive")
	}

	rate := pricing.Resolve(b.ReceiverCity, b.ReceiverDistrict)

	b.WeightKg = edits.WeightKg
	b.PricePerKg = edits.PricePerKg
	if b.PricePerKg <= 0 {
		b.PricePerKg = rate.PricePerKg
	}
	b.AdminSurcharge = edits.AdminSurcharge
	b.TransitSurcharge = edits.TransitSurcharge
	if b.TransitSurcharge <= 0 {
		b.TransitSurcharge = rate.TransitSurcharge
	}
	b.Subtotal = int64(math.Round(b.WeightKg * float64(b.PricePerKg)))
	b.Total = b.Subtotal + b.AdminSurcharge + b.TransitSurcharge

	return s.repo.PromoteBooking(ctx, b)
}

// Reject terminates a pending booking. A reason is mandatory and no
// manifest record is ever created.
func (s *Service) Reject(ctx context.Context, bookingID uint64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.New("rejection reason is required")
	}
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != models.BookingStatusPending {
		return models.ErrInvalidTransition
	}
	return s.repo.RejectBooking(ctx, bookingID, strings.TrimSpace(reason))
}

// DirectEntry creates a manifest record for a walk-in shipment that never
// went through a booking. Totals are computed the same way as Promote.
func (s *Service) DirectEntry(ctx context.Context, rec *models.ManifestRecord) (*models.ManifestRecord, error) {
	if rec.TrackingCode == "" {
		return nil, errors.New("trackingCode is required")
	}
	if rec.WeightKg <= 0 {
		return nil, errors.New("weight must be positive")
	}

	rate := pricing.Resolve(rec.ReceiverCity, rec.ReceiverDistrict)
	if rec.PricePerKg <= 0 {
		rec.PricePerKg = rate.PricePerKg
	}
	if rec.TransitSurcharge <= 0 {
		rec.TransitSurcharge = rate.TransitSurcharge
	}
	rec.Subtotal = int64(math.Round(rec.WeightKg * float64(rec.PricePerKg)))
	rec.Total = rec.Subtotal + rec.AdminSurcharge + rec.TransitSurcharge
	if rec.SettlementStatus == "" {
		rec.SettlementStatus = models.PaymentOutstanding
	}

	return s.repo.CreateManifestRecord(ctx, rec)
}
