package metricskernel

import (
	"context"
	"time"

	"github.com/shimmerdata/beacon/models"
)

func init() {
	Register(models.KindTimingDistribution, Handler{
		ValidateStored: func(raw any) bool { _, ok := raw.(HistogramValue); return ok },
		Payload:        histogramPayload,
	})
}

// TimingDistribution accumulates elapsed-time samples into a functional
// (log-linear) histogram, the representation the reference implementation
// uses for timers since the bucket range is not known ahead of time.
type TimingDistribution struct {
	Base
	Unit models.TimeUnit
}

func NewTimingDistribution(meta Metadata, unit models.TimeUnit, r Recorder, errs ErrorSink) TimingDistribution {
	meta.Kind = models.KindTimingDistribution
	return TimingDistribution{Base: Base{Meta: meta, Recorder: r, Errors: errs}, Unit: unit}
}

// Accumulate records one elapsed duration, converted to the metric's unit.
// A negative duration is an invalid_value error and leaves storage
// untouched.
func (t TimingDistribution) Accumulate(ctx context.Context, d time.Duration) {
	t.Record(ctx, func(current any) Outcome {
		if d < 0 {
			return Outcome{HasErr: true, ErrType: models.ErrorInvalidValue}
		}
		sample := uint64(d / unitDuration(t.Unit))
		hv, _ := current.(HistogramValue)
		if hv.Counts == nil {
			hv = HistogramValue{Counts: make(map[int]uint64)}
		}
		idx := FunctionalBucketIndex(sample)
		return Outcome{Next: hv.Accumulate(idx, sample), Persist: true}
	})
}

// Start returns a monotonic starting point for a later Stop/Accumulate
// pair, mirroring the reference API's timer-id handles without needing a
// process-wide timer-id table: callers hold the time.Time themselves.
func (t TimingDistribution) Start() time.Time { return time.Now() }

// Stop accumulates the elapsed time since start.
func (t TimingDistribution) Stop(ctx context.Context, start time.Time) {
	t.Accumulate(ctx, time.Since(start))
}
