package metricskernel

import (
	"context"
	"regexp"

	"github.com/shimmerdata/beacon/models"
)

// uuidShape is deliberately loose: it accepts any value shaped like a UUID
// rather than validating version/variant bits, matching the reference
// implementation's tolerance for externally-minted identifiers — including
// an optional enclosing brace/paren pair and hyphens dropped entirely.
var uuidShape = regexp.MustCompile(`^[{(]?[0-9a-fA-F]{8}-?([0-9a-fA-F]{4}-?){3}[0-9a-fA-F]{12}[)}]?$`)

func init() {
	Register(models.KindUUID, Handler{
		ValidateStored: func(raw any) bool { s, ok := raw.(string); return ok && uuidShape.MatchString(s) },
		Payload:        func(internal any) any { return internal },
	})
}

// UUID is a string measurement constrained to UUID shape.
type UUID struct{ Base }

func NewUUID(meta Metadata, r Recorder, errs ErrorSink) UUID {
	meta.Kind = models.KindUUID
	return UUID{Base{Meta: meta, Recorder: r, Errors: errs}}
}

// Set records value if it matches UUID shape; otherwise reports
// invalid_value and leaves storage untouched.
func (u UUID) Set(ctx context.Context, value string) {
	u.Record(ctx, func(current any) Outcome {
		if !uuidShape.MatchString(value) {
			return Outcome{HasErr: true, ErrType: models.ErrorInvalidValue}
		}
		return Outcome{Next: value, Persist: true}
	})
}

// GenerateAndSet is the common "set to a fresh v4 UUID" convenience the
// reference API exposes for client_id-style metrics; the value itself is
// supplied by the caller since uuid generation lives in the ping assembler.
func (u UUID) GenerateAndSet(ctx context.Context, value string) {
	u.Set(ctx, value)
}
