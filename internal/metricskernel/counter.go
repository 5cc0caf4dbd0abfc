package metricskernel

import (
	"context"
	"math"

	"github.com/shimmerdata/beacon/models"
)

// MaxCounterValue is the platform saturation ceiling for counter/quantity
// metrics: the largest signed 32-bit integer.
const MaxCounterValue int64 = math.MaxInt32

func init() {
	Register(models.KindCounter, Handler{
		ValidateStored: func(raw any) bool { return asInt64(raw) != nil },
		Payload:        func(internal any) any { return internal },
	})
}

// Counter is a monotonically increasing, saturating integer measurement.
type Counter struct{ Base }

func NewCounter(meta Metadata, r Recorder, errs ErrorSink) Counter {
	meta.Kind = models.KindCounter
	return Counter{Base{Meta: meta, Recorder: r, Errors: errs}}
}

// Add increments the counter by amount, saturating at MaxCounterValue. A
// non-positive amount is an invalid_value error and leaves storage
// untouched.
func (c Counter) Add(ctx context.Context, amount int64) {
	c.Record(ctx, func(current any) Outcome {
		if amount <= 0 {
			return Outcome{HasErr: true, ErrType: models.ErrorInvalidValue}
		}
		cur := int64(0)
		if v := asInt64(current); v != nil {
			cur = *v
		}
		next := cur + amount
		if next > MaxCounterValue || next < cur {
			next = MaxCounterValue
		}
		return Outcome{Next: next, Persist: true}
	})
}

func asInt64(v any) *int64 {
	switch n := v.(type) {
	case int64:
		return &n
	case int:
		i := int64(n)
		return &i
	case float64:
		i := int64(n)
		return &i
	default:
		return nil
	}
}
