package metricskernel

import (
	"context"

	"github.com/shimmerdata/beacon/models"
)

func init() {
	Register(models.KindBoolean, Handler{
		ValidateStored: func(raw any) bool { _, ok := raw.(bool); return ok },
		Payload:        func(internal any) any { return internal },
	})
}

// Boolean is an on/off measurement.
type Boolean struct{ Base }

// NewBoolean binds Metadata to its Recorder/ErrorSink collaborators.
func NewBoolean(meta Metadata, r Recorder, errs ErrorSink) Boolean {
	meta.Kind = models.KindBoolean
	return Boolean{Base{Meta: meta, Recorder: r, Errors: errs}}
}

// Set records value, replacing whatever was previously stored.
func (b Boolean) Set(ctx context.Context, value bool) {
	b.Record(ctx, func(current any) Outcome {
		return Outcome{Next: value, Persist: true}
	})
}
