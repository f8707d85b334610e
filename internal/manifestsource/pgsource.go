package manifestsource

import (
	"context"

	"github.com/ParcelHub/ShipCore/internal/models"
)

type branchStore interface {
	LookupBranchManifest(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error)
}

type centralStore interface {
	LookupCentralManifest(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error)
}

// BranchSource reads the per-branch manifest table.
type BranchSource struct {
	st branchStore
}

func NewBranchSource(st branchStore) *BranchSource { return &BranchSource{st: st} }

func (s *BranchSource) Lookup(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error) {
	d, ok, err := s.st.LookupBranchManifest(ctx, trackingCode)
	if err != nil || !ok {
		return nil, false, err
	}
	d.Source = "branch"
	return d, true, nil
}

// CentralSource reads the central manifest table.
type CentralSource struct {
	st centralStore
}

func NewCentralSource(st centralStore) *CentralSource { return &CentralSource{st: st} }

func (s *CentralSource) Lookup(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error) {
	d, ok, err := s.st.LookupCentralManifest(ctx, trackingCode)
	if err != nil || !ok {
		return nil, false, err
	}
	d.Source = "central"
	return d, true, nil
}
