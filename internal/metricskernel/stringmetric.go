package metricskernel

import (
	"context"

	"github.com/shimmerdata/beacon/models"
)

// MaxStringLength is the maximum number of UTF-8 bytes a String metric
// retains; longer values are truncated and reported as invalid_overflow.
const MaxStringLength = 100

func init() {
	Register(models.KindString, Handler{
		ValidateStored: func(raw any) bool { s, ok := raw.(string); return ok && len(s) <= MaxStringLength },
		Payload:        func(internal any) any { return internal },
	})
}

// String is a bounded-length text measurement.
type String struct{ Base }

func NewString(meta Metadata, r Recorder, errs ErrorSink) String {
	meta.Kind = models.KindString
	return String{Base{Meta: meta, Recorder: r, Errors: errs}}
}

// Set records value, truncating to MaxStringLength and reporting
// invalid_overflow if it was too long. The truncated value is still
// persisted: an oversized string is a recoverable mistake, not a discard.
func (s String) Set(ctx context.Context, value string) {
	s.Record(ctx, func(current any) Outcome {
		if len(value) > MaxStringLength {
			return Outcome{
				Next:    value[:MaxStringLength],
				Persist: true,
				HasErr:  true,
				ErrType: models.ErrorInvalidOverflow,
			}
		}
		return Outcome{Next: value, Persist: true}
	})
}
