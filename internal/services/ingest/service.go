package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/ParcelHub/ShipCore/internal/services/lifecycle"
)

// Code families accepted at the scan gate. Anything else is rejected before
// touching the datastore.
var acceptedPrefixes = []string{"BCE", "BEX", "RTX"}

const defaultActor = "courier"

type Repository interface {
	GetShipment(ctx context.Context, trackingCode string) (*models.Shipment, error)
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error)
}

type StatusApplier interface {
	ApplyStatus(ctx context.Context, in lifecycle.ApplyInput) (*lifecycle.ApplyResult, error)
}

type ManifestLookup interface {
	Lookup(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error)
}

type Service struct {
	repo    Repository
	applier StatusApplier
	lookup  ManifestLookup
}

func New(repo Repository, applier StatusApplier, lookup ManifestLookup) *Service {
	return &Service{repo: repo, applier: applier, lookup: lookup}
}

type Input struct {
	TrackingCode    string
	TargetStatus    string
	ActorCredential string
	CourierRef      *string
	Location        string
	Notes           string
}

type Result struct {
	TrackingCode     string
	Status           string
	CreatedShipment  bool
	DescriptorSource string
	DuplicateHistory bool
	Message          string
}

// Ingest resolves-or-creates a shipment from a scanned code and advances it
// to the target status. A history failure is embedded in the message; the
// call only fails when the shipment write itself fails.
func (s *Service) Ingest(ctx context.Context, in Input) (*Result, error) {
	code, err := NormalizeCode(in.TrackingCode)
	if err != nil {
		return nil, err
	}

	target := clampTargetStatus(in.TargetStatus)

	actor := strings.TrimSpace(in.ActorCredential)
	if actor == "" {
		actor = defaultActor
	}

	res := &Result{TrackingCode: code}

	sh, err := s.repo.GetShipment(ctx, code)
	switch {
	case err == nil:
		if sh.CurrentStatus == models.StatusDelivered {
			return nil, models.ErrAlreadyDelivered
		}
	case errors.Is(err, models.ErrShipmentNotFound):
		created, err := s.createFromManifest(ctx, code, in.CourierRef, res)
		if err != nil {
			return nil, err
		}
		sh = created
		res.CreatedShipment = true
	default:
		return nil, err
	}

	applied, err := s.applier.ApplyStatus(ctx, lifecycle.ApplyInput{
		TrackingCode: code,
		NewStatus:    target,
		Location:     in.Location,
		Notes:        in.Notes,
		Actor:        actor,
		CourierRef:   in.CourierRef,
	})
	if err != nil {
		return nil, err
	}

	res.Status = applied.Shipment.CurrentStatus
	res.DuplicateHistory = applied.DuplicateHistory
	res.Message = buildMessage(applied)
	return res, nil
}

func (s *Service) createFromManifest(ctx context.Context, code string, courierRef *string, res *Result) (*models.Shipment, error) {
	in := models.ShipmentCreateInput{
		TrackingCode:  code,
		CurrentStatus: models.StatusCreated,
		CourierRef:    courierRef,
		Origin:        "scan",
	}

	// Descriptive data is best-effort: a scan must never block on missing
	// metadata, so an unresolvable code gets placeholder values.
	if d, ok, _ := s.lookup.Lookup(ctx, code); ok {
		in.SenderName = d.SenderName
		in.ReceiverName = d.ReceiverName
		in.ReceiverCity = d.ReceiverCity
		in.ReceiverDistrict = d.ReceiverDistrict
		in.Origin = d.Source
		res.DescriptorSource = d.Source
	} else {
		in.SenderName = "UNKNOWN SENDER"
		in.ReceiverName = "UNKNOWN RECEIVER"
		res.DescriptorSource = "placeholder"
	}

	return s.repo.CreateShipment(ctx, in)
}

// NormalizeCode trims and uppercases a scanned code and checks it against
// the accepted code families.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) < 6 {
		return "", models.ErrInvalidFormat
	}
	for _, r := range code {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return "", models.ErrInvalidFormat
		}
	}
	for _, p := range acceptedPrefixes {
		if strings.HasPrefix(code, p) {
			return code, nil
		}
	}
	return "", models.ErrInvalidFormat
}

// clampTargetStatus restricts scans to the two statuses a courier can
// produce; anything else is silently downgraded to out_for_delivery.
func clampTargetStatus(target string) string {
	if target == models.StatusDelivered {
		return models.StatusDelivered
	}
	return models.StatusOutForDelivery
}

func buildMessage(applied *lifecycle.ApplyResult) string {
	msg := fmt.Sprintf("shipment %s is %s", applied.Shipment.TrackingCode, applied.Shipment.CurrentStatus)
	if applied.DuplicateHistory {
		msg += " (duplicate history ignored)"
	}
	if applied.HistoryWarning != "" {
		msg += " (warning: " + applied.HistoryWarning + ")"
	}
	return msg
}
