package metricskernel

import (
	"context"

	"github.com/shimmerdata/beacon/models"
)

func init() {
	Register(models.KindCustomDistribution, Handler{
		ValidateStored: func(raw any) bool { _, ok := raw.(HistogramValue); return ok },
		Payload:        histogramPayload,
	})
}

// CustomDistribution accumulates arbitrary integer samples into a
// precomputed-exponential histogram over a caller-declared [Min, Max] range
// with BucketCount buckets, for measurements whose scale is known up front
// (the reference implementation's "custom_distribution" kind).
type CustomDistribution struct {
	Base
	Min, Max    uint64
	BucketCount int
	edges       []uint64
}

func NewCustomDistribution(meta Metadata, min, max uint64, bucketCount int, r Recorder, errs ErrorSink) CustomDistribution {
	meta.Kind = models.KindCustomDistribution
	return CustomDistribution{
		Base:        Base{Meta: meta, Recorder: r, Errors: errs},
		Min:         min,
		Max:         max,
		BucketCount: bucketCount,
		edges:       ExponentialEdges(min, max, bucketCount),
	}
}

// Accumulate records one sample, clamped into [Min, Max] before bucket
// placement so an out-of-range sample still lands in the first or last
// bucket rather than being silently dropped.
func (c CustomDistribution) Accumulate(ctx context.Context, sample uint64) {
	c.Record(ctx, func(current any) Outcome {
		clamped := sample
		if clamped < c.Min {
			clamped = c.Min
		}
		if clamped > c.Max {
			clamped = c.Max
		}
		hv, _ := current.(HistogramValue)
		if hv.Counts == nil {
			hv = HistogramValue{Counts: make(map[int]uint64)}
		}
		idx := BucketIndexForEdges(c.edges, clamped)
		return Outcome{Next: hv.Accumulate(idx, sample), Persist: true}
	})
}
