package manifestsource

import (
	"context"
	"log/slog"

	"github.com/ParcelHub/ShipCore/internal/models"
)

// Source answers descriptive fields for a tracking code. ok=false means the
// source does not know the code; an error means the source itself failed.
type Source interface {
	Lookup(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error)
}

// Chain queries sources in a fixed priority order; the first hit wins and
// carries its provenance tag. A failing source is logged and skipped so
// ingestion never blocks on a lookup outage.
type Chain struct {
	sources []Source
}

func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

func (c *Chain) Lookup(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error) {
	for _, src := range c.sources {
		d, ok, err := src.Lookup(ctx, trackingCode)
		if err != nil {
			slog.Warn("manifest source failed", "trackingCode", trackingCode, "err", err)
			continue
		}
		if ok {
			return d, true, nil
		}
	}
	return nil, false, nil
}
