package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ParcelHub/ShipCore/internal/broker/messages"
	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/ParcelHub/ShipCore/internal/services/lifecycle"
	"github.com/pkg/errors"
)

const (
	// Shipments younger than this are assumed to still be in the normal
	// write window and are left alone.
	defaultStaleAge = 7 * 24 * time.Hour

	// Bulk updates run in fixed-size chunks to bound statement size.
	defaultChunkSize = 100

	bulkUpdateLocation = "Bulk Update"
	bulkUpdateActor    = "system"
)

type Repository interface {
	ListStaleByCourier(ctx context.Context, courierRef string, cutoff time.Time) ([]*models.Shipment, error)
	LatestHistoryStatus(ctx context.Context, trackingCode string) (status string, ok bool, err error)
	SetShipmentStatus(ctx context.Context, trackingCode, status string) error
	BulkSetStatus(ctx context.Context, trackingCodes []string, status string) (int64, error)
	BulkAppendHistory(ctx context.Context, trackingCodes []string, status, location, notes, actor string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Invalidator drops cached shipment state after a repair writes around the
// normal transition path.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

type Service struct {
	repo      Repository
	producer  Producer
	topic     string
	cacheInv  Invalidator
	staleAge  time.Duration
	chunkSize int
	now       func() time.Time
}

func New(repo Repository) *Service {
	return &Service{
		repo:      repo,
		staleAge:  defaultStaleAge,
		chunkSize: defaultChunkSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithSettings(staleAge time.Duration, chunkSize int) *Service {
	if staleAge > 0 {
		s.staleAge = staleAge
	}
	if chunkSize > 0 {
		s.chunkSize = chunkSize
	}
	return s
}

func (s *Service) WithProducer(p Producer, topic string) *Service {
	s.producer = p
	s.topic = topic
	return s
}

func (s *Service) WithCacheInvalidator(inv Invalidator) *Service {
	s.cacheInv = inv
	return s
}

// Mismatch is one detected drift: the cached shipment status disagrees with
// the latest entry of the authoritative history log.
type Mismatch struct {
	TrackingCode   string `json:"trackingCode"`
	ShipmentStatus string `json:"shipmentStatus"`
	HistoryStatus  string `json:"historyStatus"`
}

// VerifySync is a read-only diagnostic pass over a courier's stale,
// non-delivered shipments. Nothing is mutated; the mismatch list is returned
// for operator review before FixSync.
func (s *Service) VerifySync(ctx context.Context, courierRef string) ([]Mismatch, error) {
	if courierRef == "" {
		return nil, errors.New("courierRef is required")
	}

	cutoff := s.now().Add(-s.staleAge)
	candidates, err := s.repo.ListStaleByCourier(ctx, courierRef, cutoff)
	if err != nil {
		return nil, err
	}

	var out []Mismatch
	for _, sh := range candidates {
		histStatus, ok, err := s.repo.LatestHistoryStatus(ctx, sh.TrackingCode)
		if err != nil {
			return nil, err
		}
		if !ok || histStatus == sh.CurrentStatus {
			continue
		}
		out = append(out, Mismatch{
			TrackingCode:   sh.TrackingCode,
			ShipmentStatus: sh.CurrentStatus,
			HistoryStatus:  histStatus,
		})
	}
	return out, nil
}

// RepairReport tallies a FixSync pass.
type RepairReport struct {
	Attempted int      `json:"attempted"`
	Repaired  int      `json:"repaired"`
	Failed    []string `json:"failed,omitempty"`
}

// FixSync repairs each mismatch by writing the history status directly onto
// the shipment. The write bypasses the transition service on purpose: the
// status already exists in the log, so routing it back through ApplyStatus
// would append a duplicate entry. One failing record does not stop the rest.
func (s *Service) FixSync(ctx context.Context, mismatches []Mismatch) RepairReport {
	rep := RepairReport{Attempted: len(mismatches)}
	for _, m := range mismatches {
		if err := s.repo.SetShipmentStatus(ctx, m.TrackingCode, m.HistoryStatus); err != nil {
			slog.Warn("fix sync failed", "trackingCode", m.TrackingCode, "err", err)
			rep.Failed = append(rep.Failed, m.TrackingCode)
			continue
		}
		s.invalidateCache(ctx, m.TrackingCode)
		rep.Repaired++
	}
	return rep
}

// BulkReport is the structured outcome of a BulkUpdate: the exact codes that
// changed, so an operator can audit what happened, plus per-chunk failures.
type BulkReport struct {
	NothingToUpdate bool     `json:"nothingToUpdate,omitempty"`
	UpdatedCount    int      `json:"updatedCount"`
	TrackingCodes   []string `json:"trackingCodes,omitempty"`
	ChunkErrors     []string `json:"chunkErrors,omitempty"`
}

// BulkUpdate moves all of a courier's stale, non-delivered shipments to the
// target status, chunk by chunk. Committed chunks stay committed whatever
// happens later (at-least-once, partial-completion semantics); a chunk
// failure is recorded and processing continues.
func (s *Service) BulkUpdate(ctx context.Context, courierRef, targetStatus, notes string) (*BulkReport, error) {
	if courierRef == "" {
		return nil, errors.New("courierRef is required")
	}
	if !models.IsValidStatus(targetStatus) {
		return nil, errors.Errorf("unknown status %q", targetStatus)
	}
	if notes == "" {
		notes = "Bulk status update"
	}

	cutoff := s.now().Add(-s.staleAge)
	candidates, err := s.repo.ListStaleByCourier(ctx, courierRef, cutoff)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &BulkReport{NothingToUpdate: true}, nil
	}

	codes := make([]string, 0, len(candidates))
	for _, sh := range candidates {
		codes = append(codes, sh.TrackingCode)
	}

	rep := &BulkReport{}
	for i, chunk := range chunked(codes, s.chunkSize) {
		n, err := s.repo.BulkSetStatus(ctx, chunk, targetStatus)
		if err != nil {
			rep.ChunkErrors = append(rep.ChunkErrors, fmt.Sprintf("chunk %d: %v", i+1, err))
			continue
		}
		if err := s.repo.BulkAppendHistory(ctx, chunk, targetStatus, bulkUpdateLocation, notes, bulkUpdateActor); err != nil {
			// The status writes are already committed; the missing audit
			// entries are repairable, so this only degrades the report.
			rep.ChunkErrors = append(rep.ChunkErrors, fmt.Sprintf("chunk %d history: %v", i+1, err))
		}
		rep.UpdatedCount += int(n)
		rep.TrackingCodes = append(rep.TrackingCodes, chunk...)
		for _, code := range chunk {
			s.invalidateCache(ctx, code)
		}
		s.publishBulkChanges(ctx, chunk, targetStatus)
	}
	return rep, nil
}

func (s *Service) publishBulkChanges(ctx context.Context, codes []string, status string) {
	if s.producer == nil || s.topic == "" {
		return
	}
	now := time.Now().UTC()
	for _, code := range codes {
		b, _ := json.Marshal(messages.ShipmentStatusChanged{
			TrackingCode: code,
			Status:       status,
			Actor:        bulkUpdateActor,
			OccurredAt:   now,
		})
		if err := s.producer.Publish(ctx, s.topic, []byte(code), b); err != nil {
			slog.Warn("publish bulk status change failed", "trackingCode", code, "err", err)
			return
		}
	}
}

func (s *Service) invalidateCache(ctx context.Context, trackingCode string) {
	if s.cacheInv == nil {
		return
	}
	if err := s.cacheInv.Invalidate(ctx, lifecycle.CurrentStateKey(trackingCode)); err != nil {
		slog.Warn("cache invalidate failed", "trackingCode", trackingCode, "err", err)
	}
}

func chunked(codes []string, size int) [][]string {
	var out [][]string
	for len(codes) > size {
		out = append(out, codes[:size])
		codes = codes[size:]
	}
	if len(codes) > 0 {
		out = append(out, codes)
	}
	return out
}
