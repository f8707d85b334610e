package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	shipmentsapi "github.com/ParcelHub/ShipCore/internal/api/shipments_api"
	"github.com/ParcelHub/ShipCore/internal/broker/messages"
	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/ParcelHub/ShipCore/internal/services/ingest"
	"github.com/ParcelHub/ShipCore/internal/services/lifecycle"
	"github.com/ParcelHub/ShipCore/internal/services/reconcile"
	"github.com/stretchr/testify/require"
)

type fakeIngestRepo struct {
	status string
	err    error
}

func (r *fakeIngestRepo) GetShipment(ctx context.Context, code string) (*models.Shipment, error) {
	if r.err != nil {
		return nil, r.err
	}
	status := r.status
	if status == "" {
		status = models.StatusCreated
	}
	return &models.Shipment{TrackingCode: code, CurrentStatus: status}, nil
}
func (r *fakeIngestRepo) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	return &models.Shipment{TrackingCode: in.TrackingCode, CurrentStatus: models.StatusCreated}, nil
}

type fakeApplier struct {
	mu      sync.Mutex
	applied []lifecycle.ApplyInput
}

func (a *fakeApplier) ApplyStatus(ctx context.Context, in lifecycle.ApplyInput) (*lifecycle.ApplyResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, in)
	return &lifecycle.ApplyResult{
		Shipment: &models.Shipment{TrackingCode: in.TrackingCode, CurrentStatus: in.NewStatus},
	}, nil
}

func (a *fakeApplier) appliedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

type fakeLookup struct{}

func (fakeLookup) Lookup(ctx context.Context, code string) (*models.ManifestDescriptor, bool, error) {
	return nil, false, nil
}

type stubReader struct{}

func (stubReader) GetShipment(ctx context.Context, code string) (*models.Shipment, error) {
	return nil, models.ErrShipmentNotFound
}
func (stubReader) ListHistory(ctx context.Context, code string, limit, offset int) ([]*models.HistoryEntry, error) {
	return nil, nil
}

type stubPromoter struct{}

func (stubPromoter) Promote(ctx context.Context, id uint64, edits models.BookingEdits) (*models.ManifestRecord, error) {
	return nil, models.ErrBookingNotFound
}
func (stubPromoter) Reject(ctx context.Context, id uint64, reason string) error {
	return models.ErrBookingNotFound
}
func (stubPromoter) DirectEntry(ctx context.Context, rec *models.ManifestRecord) (*models.ManifestRecord, error) {
	return rec, nil
}

type stubReconciler struct{}

func (stubReconciler) VerifySync(ctx context.Context, courierRef string) ([]reconcile.Mismatch, error) {
	return nil, nil
}
func (stubReconciler) FixSync(ctx context.Context, mismatches []reconcile.Mismatch) reconcile.RepairReport {
	return reconcile.RepairReport{}
}
func (stubReconciler) BulkUpdate(ctx context.Context, courierRef, targetStatus, notes string) (*reconcile.BulkReport, error) {
	return &reconcile.BulkReport{NothingToUpdate: true}, nil
}

type blockingConsumer struct{}

func (blockingConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// scriptedConsumer delivers the prepared messages once, then blocks until the
// context is cancelled.
type scriptedConsumer struct {
	msgs      [][]byte
	delivered chan struct{}
}

func (c *scriptedConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, m := range c.msgs {
		if err := handler(nil, m); err != nil {
			return err
		}
	}
	close(c.delivered)
	<-ctx.Done()
	return ctx.Err()
}

func writeSwaggerFile(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func newTestAPI(applier *fakeApplier) (*shipmentsapi.ShipmentsAPI, *ingest.Service) {
	ingestSvc := ingest.New(&fakeIngestRepo{}, applier, fakeLookup{})
	api := shipmentsapi.New(ingestSvc, stubReader{}, stubPromoter{}, stubReconciler{})
	return api, ingestSvc
}

func TestRunShipAPI_SwaggerServed(t *testing.T) {
	api, ingestSvc := newTestAPI(&fakeApplier{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := shipAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   writeSwaggerFile(t),
		topic:         "shipment.scanned",
		consumerGroup: "ship-api",
		onListen:      func(addr string) { addrCh <- addr },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runShipAPI(ctx, opts, api, ingestSvc, blockingConsumer{}) }()

	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/swagger.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), `"swagger"`)

	resp2, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, 200, resp2.StatusCode)

	cancel()
	require.Error(t, <-errCh)
}

func TestRunShipAPI_MissingSwagger(t *testing.T) {
	api, ingestSvc := newTestAPI(&fakeApplier{})

	err := runShipAPI(context.Background(), shipAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "nope.json"),
	}, api, ingestSvc, blockingConsumer{})
	require.Error(t, err)
}

func TestRunShipAPI_ConsumesScanEvents(t *testing.T) {
	applier := &fakeApplier{}
	api, ingestSvc := newTestAPI(applier)

	payload, err := json.Marshal(messages.ShipmentScanned{
		TrackingCode:    "BCE123456",
		TargetStatus:    models.StatusDelivered,
		ActorCredential: "courier-7",
	})
	require.NoError(t, err)

	cons := &scriptedConsumer{msgs: [][]byte{payload}, delivered: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := writeSwaggerFile(t)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runShipAPI(ctx, shipAPIOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
		}, api, ingestSvc, cons)
	}()

	<-cons.delivered
	require.Equal(t, 1, applier.appliedCount())

	cancel()
	require.Error(t, <-errCh)
}

func TestHandleScanEvent_DropsUnprocessable(t *testing.T) {
	applier := &fakeApplier{}
	ctx := context.Background()

	// Malformed payload: dropped, not redelivered.
	ingestSvc := ingest.New(&fakeIngestRepo{}, applier, fakeLookup{})
	require.NoError(t, handleScanEvent(ctx, ingestSvc, []byte("{not json")))

	// Rejected code family: dropped.
	payload, err := json.Marshal(messages.ShipmentScanned{TrackingCode: "??"})
	require.NoError(t, err)
	require.NoError(t, handleScanEvent(ctx, ingestSvc, payload))

	// Rescan of a delivered parcel: dropped.
	deliveredSvc := ingest.New(&fakeIngestRepo{status: models.StatusDelivered}, applier, fakeLookup{})
	payload, err = json.Marshal(messages.ShipmentScanned{TrackingCode: "BCE123456"})
	require.NoError(t, err)
	require.NoError(t, handleScanEvent(ctx, deliveredSvc, payload))

	require.Zero(t, applier.appliedCount())
}

func TestHandleScanEvent_TransientErrorPropagates(t *testing.T) {
	ingestSvc := ingest.New(&fakeIngestRepo{err: errors.New("db down")}, &fakeApplier{}, fakeLookup{})

	payload, err := json.Marshal(messages.ShipmentScanned{TrackingCode: "BCE123456"})
	require.NoError(t, err)
	require.Error(t, handleScanEvent(context.Background(), ingestSvc, payload))
}

func TestRunShipAPI_SurvivesPoisonScanEvents(t *testing.T) {
	applier := &fakeApplier{}
	api, ingestSvc := newTestAPI(applier)

	good, err := json.Marshal(messages.ShipmentScanned{TrackingCode: "BCE123456"})
	require.NoError(t, err)
	bad, err := json.Marshal(messages.ShipmentScanned{TrackingCode: "ZZ"})
	require.NoError(t, err)

	// The consumer must get past the poison messages to the good one.
	cons := &scriptedConsumer{
		msgs:      [][]byte{[]byte("{not json"), bad, good},
		delivered: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := writeSwaggerFile(t)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runShipAPI(ctx, shipAPIOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
		}, api, ingestSvc, cons)
	}()

	<-cons.delivered
	require.Equal(t, 1, applier.appliedCount())

	cancel()
	require.Error(t, <-errCh)
}
