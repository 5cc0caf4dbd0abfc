package metricskernel

import (
	"context"

	"github.com/shimmerdata/beacon/models"
)

func init() {
	Register(models.KindQuantity, Handler{
		ValidateStored: func(raw any) bool { v := asInt64(raw); return v != nil && *v >= 0 },
		Payload:        func(internal any) any { return internal },
	})
}

// Quantity is a non-negative integer measurement (a count of things, not a
// running total), saturating at the same ceiling as Counter.
type Quantity struct{ Base }

func NewQuantity(meta Metadata, r Recorder, errs ErrorSink) Quantity {
	meta.Kind = models.KindQuantity
	return Quantity{Base{Meta: meta, Recorder: r, Errors: errs}}
}

// Set replaces the stored value. A negative value is an invalid_value error
// and leaves storage untouched; values above MaxCounterValue saturate.
func (q Quantity) Set(ctx context.Context, value int64) {
	q.Record(ctx, func(current any) Outcome {
		if value < 0 {
			return Outcome{HasErr: true, ErrType: models.ErrorInvalidValue}
		}
		if value > MaxCounterValue {
			value = MaxCounterValue
		}
		return Outcome{Next: value, Persist: true}
	})
}
