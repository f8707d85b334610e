package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ParcelHub/ShipCore/internal/broker/messages"
	"github.com/ParcelHub/ShipCore/internal/cache"
	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	GetShipment(ctx context.Context, trackingCode string) (*models.Shipment, error)
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error)
	UpdateShipmentStatus(ctx context.Context, trackingCode, status string, courierRef *string) error
	AppendHistory(ctx context.Context, e models.HistoryEntry) (inserted bool, err error)
	ListHistory(ctx context.Context, trackingCode string, limit, offset int) ([]*models.HistoryEntry, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	producer   Producer
	topic      string
	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL}
}

// WithProducer enables best-effort status-changed events on the given topic.
func (s *Service) WithProducer(p Producer, topic string) *Service {
	s.producer = p
	s.topic = topic
	return s
}

type ApplyInput struct {
	TrackingCode string
	NewStatus    string
	Location     string
	Notes        string
	Actor        string
	CourierRef   *string
	ProofRef     *string
	Latitude     *float64
	Longitude    *float64
}

type ApplyResult struct {
	Shipment *models.Shipment
	// DuplicateHistory is set when the audit entry already existed; the
	// transition still counts as a success.
	DuplicateHistory bool
	// HistoryWarning carries a failed history append. The shipment write is
	// the primary fact and has already happened; the missing audit entry is
	// repairable by the reconciliation service.
	HistoryWarning string
}

// ApplyStatus advances the shipment state machine. The shipment row is
// written first, then the history entry; the two writes are deliberately not
// one transaction, so a history failure degrades to a warning instead of
// failing the call.
func (s *Service) ApplyStatus(ctx context.Context, in ApplyInput) (*ApplyResult, error) {
	if !models.IsValidStatus(in.NewStatus) {
		return nil, errors.Errorf("unknown status %q", in.NewStatus)
	}

	sh, err := s.repo.GetShipment(ctx, in.TrackingCode)
	if err != nil {
		return nil, err
	}
	if sh.CurrentStatus == models.StatusDelivered {
		return nil, models.ErrTerminalState
	}

	if err := s.repo.UpdateShipmentStatus(ctx, in.TrackingCode, in.NewStatus, in.CourierRef); err != nil {
		return nil, err
	}
	sh.CurrentStatus = in.NewStatus
	if in.CourierRef != nil {
		sh.CourierRef = in.CourierRef
	}
	sh.UpdatedAt = time.Now().UTC()

	res := &ApplyResult{Shipment: sh}

	inserted, err := s.repo.AppendHistory(ctx, models.HistoryEntry{
		TrackingCode: in.TrackingCode,
		Status:       in.NewStatus,
		Location:     in.Location,
		Notes:        in.Notes,
		Actor:        in.Actor,
		CourierRef:   in.CourierRef,
		ProofRef:     in.ProofRef,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
	})
	if err != nil {
		res.HistoryWarning = fmt.Sprintf("history append failed: %v", err)
	} else if !inserted {
		res.DuplicateHistory = true
	}

	s.publishStatusChanged(ctx, sh, in.Actor)
	s.refreshCache(ctx, in.TrackingCode)

	return res, nil
}

// AppendHistory writes one audit entry outside of a status transition.
// duplicate=true means the latest entry already carried the same status and
// actor, so the append was absorbed; callers treat that as success.
func (s *Service) AppendHistory(ctx context.Context, e models.HistoryEntry) (duplicate bool, err error) {
	inserted, err := s.repo.AppendHistory(ctx, e)
	if err != nil {
		return false, err
	}
	return !inserted, nil
}

// GetShipment serves the read path with a best-effort cache of the current
// state. Transition decisions never read the cache: ApplyStatus always
// re-reads the repository.
func (s *Service) GetShipment(ctx context.Context, trackingCode string) (*models.Shipment, error) {
	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, CurrentStateKey(trackingCode)); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	sh, err := s.repo.GetShipment(ctx, trackingCode)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.currentTTL > 0 {
		b, _ := json.Marshal(sh)
		_ = s.cache.Set(ctx, CurrentStateKey(trackingCode), b, s.currentTTL)
	}
	return sh, nil
}

func (s *Service) ListHistory(ctx context.Context, trackingCode string, limit, offset int) ([]*models.HistoryEntry, error) {
	return s.repo.ListHistory(ctx, trackingCode, limit, offset)
}

func (s *Service) publishStatusChanged(ctx context.Context, sh *models.Shipment, actor string) {
	if s.producer == nil || s.topic == "" {
		return
	}
	b, _ := json.Marshal(messages.ShipmentStatusChanged{
		TrackingCode: sh.TrackingCode,
		Status:       sh.CurrentStatus,
		Actor:        actor,
		CourierRef:   sh.CourierRef,
		OccurredAt:   time.Now().UTC(),
	})
	if err := s.producer.Publish(ctx, s.topic, []byte(sh.TrackingCode), b); err != nil {
		slog.Warn("publish status changed failed", "trackingCode", sh.TrackingCode, "err", err)
	}
}

func (s *Service) refreshCache(ctx context.Context, trackingCode string) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	sh, err := s.repo.GetShipment(ctx, trackingCode)
	if err != nil {
		return
	}
	b, _ := json.Marshal(sh)
	_ = s.cache.Set(ctx, CurrentStateKey(trackingCode), b, s.currentTTL)
}

// CurrentStateKey is the cache key of a shipment's current state. Exported
// so the reconciliation service can invalidate entries it rewrites.
func CurrentStateKey(trackingCode string) string {
	return fmt.Sprintf("shipment:%s:current", trackingCode)
}
