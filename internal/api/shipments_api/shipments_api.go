package shipments_api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/ParcelHub/ShipCore/internal/pricing"
	"github.com/ParcelHub/ShipCore/internal/services/ingest"
	"github.com/ParcelHub/ShipCore/internal/services/reconcile"
	"github.com/go-chi/chi/v5"
)

type Ingestor interface {
	Ingest(ctx context.Context, in ingest.Input) (*ingest.Result, error)
}

type ShipmentReader interface {
	GetShipment(ctx context.Context, trackingCode string) (*models.Shipment, error)
	ListHistory(ctx context.Context, trackingCode string, limit, offset int) ([]*models.HistoryEntry, error)
}

type Promoter interface {
	Promote(ctx context.Context, bookingID uint64, edits models.BookingEdits) (*models.ManifestRecord, error)
	Reject(ctx context.Context, bookingID uint64, reason string) error
	DirectEntry(ctx context.Context, rec *models.ManifestRecord) (*models.ManifestRecord, error)
}

type Reconciler interface {
	VerifySync(ctx context.Context, courierRef string) ([]reconcile.Mismatch, error)
	FixSync(ctx context.Context, mismatches []reconcile.Mismatch) reconcile.RepairReport
	BulkUpdate(ctx context.Context, courierRef, targetStatus, notes string) (*reconcile.BulkReport, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type ShipmentsAPI struct {
	ingestor   Ingestor
	reader     ShipmentReader
	promoter   Promoter
	reconciler Reconciler

	rl          RateLimiter
	rlPerMinute int64
}

func New(ingestor Ingestor, reader ShipmentReader, promoter Promoter, reconciler Reconciler) *ShipmentsAPI {
	return &ShipmentsAPI{
		ingestor:   ingestor,
		reader:     reader,
		promoter:   promoter,
		reconciler: reconciler,
	}
}

// WithRateLimiter bounds ingest scans per actor credential.
func (a *ShipmentsAPI) WithRateLimiter(rl RateLimiter, perMinute int64) *ShipmentsAPI {
	a.rl = rl
	a.rlPerMinute = perMinute
	return a
}

func (a *ShipmentsAPI) Routes(r chi.Router) {
	r.Post("/v1/ingest", a.handleIngest)
	r.Get("/v1/shipments/{trackingCode}", a.handleGetShipment)
	r.Get("/v1/shipments/{trackingCode}/history", a.handleListHistory)
	r.Post("/v1/bookings/{bookingID}/promote", a.handlePromote)
	r.Post("/v1/bookings/{bookingID}/reject", a.handleReject)
	r.Post("/v1/manifests", a.handleDirectEntry)
	r.Get("/v1/couriers/{courierRef}/sync-report", a.handleVerifySync)
	r.Post("/v1/couriers/{courierRef}/sync-repair", a.handleFixSync)
	r.Post("/v1/couriers/{courierRef}/bulk-update", a.handleBulkUpdate)
	r.Get("/v1/zones/price", a.handleZonePrice)
}

type ingestRequest struct {
	TrackingCode    string  `json:"trackingCode"`
	TargetStatus    string  `json:"targetStatus,omitempty"`
	ActorCredential string  `json:"actorCredential,omitempty"`
	CourierRef      *string `json:"courierRef,omitempty"`
	Location        string  `json:"location,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

type ingestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	TrackingCode     string `json:"trackingCode,omitempty"`
	Status           string `json:"status,omitempty"`
	CreatedShipment  bool   `json:"createdShipment,omitempty"`
	DescriptorSource string `json:"descriptorSource,omitempty"`
	DuplicateHistory bool   `json:"duplicateHistory,omitempty"`
}

func (a *ShipmentsAPI) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ingestResponse{Success: false, Message: "invalid json body"})
		return
	}

	if a.rl != nil && a.rlPerMinute > 0 {
		actor := req.ActorCredential
		if actor == "" {
			actor = "anonymous"
		}
		ok, _, err := a.rl.Allow(r.Context(), "ingest:"+actor, a.rlPerMinute, time.Minute)
		if err == nil && !ok {
			writeJSON(w, http.StatusTooManyRequests, ingestResponse{Success: false, Message: "scan rate limit exceeded"})
			return
		}
	}

	res, err := a.ingestor.Ingest(r.Context(), ingest.Input{
		TrackingCode:    req.TrackingCode,
		TargetStatus:    req.TargetStatus,
		ActorCredential: req.ActorCredential,
		CourierRef:      req.CourierRef,
		Location:        req.Location,
		Notes:           req.Notes,
	})
	if err != nil {
		writeJSON(w, statusFor(err), ingestResponse{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Success:          true,
		Message:          res.Message,
		TrackingCode:     res.TrackingCode,
		Status:           res.Status,
		CreatedShipment:  res.CreatedShipment,
		DescriptorSource: res.DescriptorSource,
		DuplicateHistory: res.DuplicateHistory,
	})
}

func (a *ShipmentsAPI) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := a.reader.GetShipment(r.Context(), chi.URLParam(r, "trackingCode"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (a *ShipmentsAPI) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	evs, err := a.reader.ListHistory(r.Context(), chi.URLParam(r, "trackingCode"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": evs})
}

type promoteRequest struct {
	WeightKg         float64 `json:"weightKg"`
	PricePerKg       int64   `json:"pricePerKg"`
	AdminSurcharge   int64   `json:"adminSurcharge"`
	TransitSurcharge int64   `json:"transitSurcharge"`
}

func (a *ShipmentsAPI) handlePromote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	rec, err := a.promoter.Promote(r.Context(), id, models.BookingEdits{
		WeightKg:         req.WeightKg,
		PricePerKg:       req.PricePerKg,
		AdminSurcharge:   req.AdminSurcharge,
		TransitSurcharge: req.TransitSurcharge,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (a *ShipmentsAPI) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if err := a.promoter.Reject(r.Context(), id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejected": true})
}

func (a *ShipmentsAPI) handleDirectEntry(w http.ResponseWriter, r *http.Request) {
	var rec models.ManifestRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	created, err := a.promoter.DirectEntry(r.Context(), &rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (a *ShipmentsAPI) handleVerifySync(w http.ResponseWriter, r *http.Request) {
	mismatches, err := a.reconciler.VerifySync(r.Context(), chi.URLParam(r, "courierRef"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"courierRef": chi.URLParam(r, "courierRef"),
		"mismatches": mismatches,
		"count":      len(mismatches),
	})
}

type fixSyncRequest struct {
	Mismatches []reconcile.Mismatch `json:"mismatches"`
}

func (a *ShipmentsAPI) handleFixSync(w http.ResponseWriter, r *http.Request) {
	var req fixSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(req.Mismatches) == 0 {
		http.Error(w, "mismatches are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, a.reconciler.FixSync(r.Context(), req.Mismatches))
}

type bulkUpdateRequest struct {
	TargetStatus string `json:"targetStatus"`
	Notes        string `json:"notes,omitempty"`
}

func (a *ShipmentsAPI) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	rep, err := a.reconciler.BulkUpdate(r.Context(), chi.URLParam(r, "courierRef"), req.TargetStatus, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *ShipmentsAPI) handleZonePrice(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	district := r.URL.Query().Get("district")
	if city == "" {
		http.Error(w, "city is required", http.StatusBadRequest)
		return
	}

	rate := pricing.Resolve(city, district)
	writeJSON(w, http.StatusOK, map[string]any{
		"city":             city,
		"district":         district,
		"pricePerKg":       rate.PricePerKg,
		"transitSurcharge": rate.TransitSurcharge,
	})
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrShipmentNotFound), errors.Is(err, models.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyDelivered),
		errors.Is(err, models.ErrTerminalState),
		errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
