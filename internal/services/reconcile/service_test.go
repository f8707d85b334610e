package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/ParcelHub/ShipCore/internal/services/lifecycle"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	stale    []*models.Shipment
	staleErr error

	latest map[string]string

	fixed   map[string]string
	fixErrs map[string]error

	bulkChunks [][]string
	bulkErrOn  int // 1-based chunk index that fails, 0 = never
	histChunks [][]string
	histErr    error
}

func (f *fakeRepo) ListStaleByCourier(ctx context.Context, courierRef string, cutoff time.Time) ([]*models.Shipment, error) {
	return f.stale, f.staleErr
}
func (f *fakeRepo) LatestHistoryStatus(ctx context.Context, code string) (string, bool, error) {
	st, ok := f.latest[code]
	return st, ok, nil
}
func (f *fakeRepo) SetShipmentStatus(ctx context.Context, code, status string) error {
	if err, ok := f.fixErrs[code]; ok {
		return err
	}
	if f.fixed == nil {
		f.fixed = map[string]string{}
	}
	f.fixed[code] = status
	return nil
}
func (f *fakeRepo) BulkSetStatus(ctx context.Context, codes []string, status string) (int64, error) {
	f.bulkChunks = append(f.bulkChunks, codes)
	if f.bulkErrOn == len(f.bulkChunks) {
		return 0, errors.New("chunk write failed")
	}
	return int64(len(codes)), nil
}
func (f *fakeRepo) BulkAppendHistory(ctx context.Context, codes []string, status, location, notes, actor string) error {
	f.histChunks = append(f.histChunks, codes)
	return f.histErr
}

type fakeInvalidator struct {
	keys []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	return nil
}

func shipment(code, status string) *models.Shipment {
	return &models.Shipment{TrackingCode: code, CurrentStatus: status}
}

func TestVerifySync_reportsDrift(t *testing.T) {
	r := &fakeRepo{
		stale: []*models.Shipment{
			shipment("BCE1", models.StatusOutForDelivery),
			shipment("BCE2", models.StatusOutForDelivery),
			shipment("BCE3", models.StatusCreated),
		},
		latest: map[string]string{
			"BCE1": models.StatusDelivered,      // drift
			"BCE2": models.StatusOutForDelivery, // in sync
			// BCE3 has no history at all: not drift
		},
	}
	s := New(r)

	got, err := s.VerifySync(context.Background(), "courier-x")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, Mismatch{
		TrackingCode:   "BCE1",
		ShipmentStatus: models.StatusOutForDelivery,
		HistoryStatus:  models.StatusDelivered,
	}, got[0])

	// Read-only pass: nothing was written.
	require.Empty(t, r.fixed)
}

func TestVerifySync_requiresCourier(t *testing.T) {
	_, err := New(&fakeRepo{}).VerifySync(context.Background(), "")
	require.Error(t, err)
}

func TestFixSync_historyWinsWithoutNewEntry(t *testing.T) {
	r := &fakeRepo{}
	s := New(r)

	rep := s.FixSync(context.Background(), []Mismatch{
		{TrackingCode: "BCE1", ShipmentStatus: models.StatusOutForDelivery, HistoryStatus: models.StatusDelivered},
	})
	require.Equal(t, 1, rep.Attempted)
	require.Equal(t, 1, rep.Repaired)
	require.Empty(t, rep.Failed)
	require.Equal(t, models.StatusDelivered, r.fixed["BCE1"])
	// Direct field write only: no history chunk was appended.
	require.Empty(t, r.histChunks)
}

func TestFixSync_invalidatesRepairedCacheEntries(t *testing.T) {
	inv := &fakeInvalidator{}
	r := &fakeRepo{fixErrs: map[string]error{"BCE2": errors.New("row locked")}}
	s := New(r).WithCacheInvalidator(inv)

	s.FixSync(context.Background(), []Mismatch{
		{TrackingCode: "BCE1", HistoryStatus: models.StatusDelivered},
		{TrackingCode: "BCE2", HistoryStatus: models.StatusDelivered},
	})
	// Only the successful repair drops its cached state.
	require.Equal(t, []string{lifecycle.CurrentStateKey("BCE1")}, inv.keys)
}

func TestFixSync_continueOnError(t *testing.T) {
	r := &fakeRepo{fixErrs: map[string]error{"BCE2": errors.New("row locked")}}
	s := New(r)

	rep := s.FixSync(context.Background(), []Mismatch{
		{TrackingCode: "BCE1", HistoryStatus: models.StatusDelivered},
		{TrackingCode: "BCE2", HistoryStatus: models.StatusDelivered},
		{TrackingCode: "BCE3", HistoryStatus: models.StatusException},
	})
	require.Equal(t, 3, rep.Attempted)
	require.Equal(t, 2, rep.Repaired)
	require.Equal(t, []string{"BCE2"}, rep.Failed)
	require.Equal(t, models.StatusException, r.fixed["BCE3"])
}

func TestBulkUpdate_nothingToUpdate(t *testing.T) {
	s := New(&fakeRepo{})
	rep, err := s.BulkUpdate(context.Background(), "courier-x", models.StatusDelivered, "")
	require.NoError(t, err)
	require.True(t, rep.NothingToUpdate)
	require.Zero(t, rep.UpdatedCount)
}

func TestBulkUpdate_updatesAndAppendsHistory(t *testing.T) {
	r := &fakeRepo{stale: []*models.Shipment{
		shipment("BCE1", models.StatusOutForDelivery),
		shipment("BCE2", models.StatusOutForDelivery),
		shipment("BCE3", models.StatusCreated),
	}}
	s := New(r)

	rep, err := s.BulkUpdate(context.Background(), "courier-x", models.StatusDelivered, "batch notes")
	require.NoError(t, err)
	require.False(t, rep.NothingToUpdate)
	require.Equal(t, 3, rep.UpdatedCount)
	require.Equal(t, []string{"BCE1", "BCE2", "BCE3"}, rep.TrackingCodes)
	require.Empty(t, rep.ChunkErrors)
	require.Len(t, r.histChunks, 1)
}

func TestBulkUpdate_invalidatesUpdatedCacheEntries(t *testing.T) {
	inv := &fakeInvalidator{}
	r := &fakeRepo{stale: []*models.Shipment{
		shipment("BCE1", models.StatusOutForDelivery),
		shipment("BCE2", models.StatusOutForDelivery),
	}}
	s := New(r).WithCacheInvalidator(inv)

	_, err := s.BulkUpdate(context.Background(), "courier-x", models.StatusDelivered, "")
	require.NoError(t, err)
	require.Equal(t, []string{
		lifecycle.CurrentStateKey("BCE1"),
		lifecycle.CurrentStateKey("BCE2"),
	}, inv.keys)
}

func TestBulkUpdate_chunksAndPartialFailure(t *testing.T) {
	var stale []*models.Shipment
	for _, c := range []string{"BCE1", "BCE2", "BCE3", "BCE4", "BCE5"} {
		stale = append(stale, shipment(c, models.StatusOutForDelivery))
	}
	r := &fakeRepo{stale: stale, bulkErrOn: 2}
	s := New(r).WithSettings(7*24*time.Hour, 2)

	rep, err := s.BulkUpdate(context.Background(), "courier-x", models.StatusException, "")
	require.NoError(t, err)

	// Chunks of 2: [BCE1 BCE2] ok, [BCE3 BCE4] fails, [BCE5] ok.
	require.Equal(t, [][]string{{"BCE1", "BCE2"}, {"BCE3", "BCE4"}, {"BCE5"}}, r.bulkChunks)
	require.Equal(t, 3, rep.UpdatedCount)
	require.Equal(t, []string{"BCE1", "BCE2", "BCE5"}, rep.TrackingCodes)
	require.Len(t, rep.ChunkErrors, 1)
	require.Contains(t, rep.ChunkErrors[0], "chunk 2")
}

func TestBulkUpdate_historyFailureKeepsStatusWrites(t *testing.T) {
	r := &fakeRepo{
		stale:   []*models.Shipment{shipment("BCE1", models.StatusOutForDelivery)},
		histErr: errors.New("history down"),
	}
	s := New(r)

	rep, err := s.BulkUpdate(context.Background(), "courier-x", models.StatusDelivered, "")
	require.NoError(t, err)
	require.Equal(t, 1, rep.UpdatedCount)
	require.Len(t, rep.ChunkErrors, 1)
	require.Contains(t, rep.ChunkErrors[0], "history")
}

func TestBulkUpdate_rejectsUnknownStatus(t *testing.T) {
	_, err := New(&fakeRepo{}).BulkUpdate(context.Background(), "courier-x", "vanished", "")
	require.Error(t, err)
}
