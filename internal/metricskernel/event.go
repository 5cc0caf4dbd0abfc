package metricskernel

import (
	"context"

	"github.com/shimmerdata/beacon/models"
)

// EventRecorder is the seam Event metrics use to reach the events database
// directly; events are append-only and do not go through the metrics
// database's single-value transform pipeline.
type EventRecorder interface {
	RecordEvent(ctx context.Context, meta Metadata, extra map[string]string) error
}

// Event is a timestamped occurrence with a free-form string extras map.
type Event struct {
	Meta     Metadata
	Recorder EventRecorder
	Errors   ErrorSink
}

func NewEvent(meta Metadata, r EventRecorder, errs ErrorSink) Event {
	meta.Kind = models.KindEvent
	return Event{Meta: meta, Recorder: r, Errors: errs}
}

// Record appends the event with the given extras, a no-op when disabled.
func (e Event) Record(ctx context.Context, extra map[string]string) {
	if e.Meta.Disabled {
		return
	}
	if err := e.Recorder.RecordEvent(ctx, e.Meta, extra); err != nil && e.Errors != nil {
		e.Errors.RecordError(ctx, e.Meta.Identifier(), models.ErrorInvalidState, e.Meta.SendInPings)
	}
}
