package metricskernel

import (
	"context"
	"regexp"

	"github.com/shimmerdata/beacon/models"
)

// OtherLabel is where a labeled metric's updates land once the number of
// distinct dynamic labels observed exceeds maxDynamicLabels, or the label
// fails validation outright.
const OtherLabel = "__other__"

const maxDynamicLabels = 16

var labelShape = regexp.MustCompile(`^[a-z_][a-z0-9_.]{0,70}$`)

func init() {
	Register(models.KindLabeledBoolean, Handler{
		ValidateStored: func(raw any) bool { _, ok := raw.(bool); return ok },
		Payload:        func(internal any) any { return internal },
	})
	Register(models.KindLabeledCounter, Handler{
		ValidateStored: func(raw any) bool { return asInt64(raw) != nil },
		Payload:        func(internal any) any { return internal },
	})
	Register(models.KindLabeledString, Handler{
		ValidateStored: func(raw any) bool { _, ok := raw.(string); return ok },
		Payload:        func(internal any) any { return internal },
	})
}

// resolveLabel validates label against labelShape, tracking how many
// distinct dynamic labels this process has seen for the metric so that
// overflow falls back to OtherLabel rather than growing unbounded.
func resolveLabel(seen *labelSet, label string) (resolved string, errType models.ErrorType, hasErr bool) {
	if !labelShape.MatchString(label) {
		return OtherLabel, models.ErrorInvalidLabel, true
	}
	if seen.accepts(label) {
		return label, "", false
	}
	return OtherLabel, models.ErrorInvalidLabel, true
}

// labelSet tracks the distinct labels a labeled metric has recorded so far
// in this process, capping growth at maxDynamicLabels.
type labelSet struct {
	values map[string]struct{}
}

func newLabelSet() *labelSet { return &labelSet{values: make(map[string]struct{})} }

func (s *labelSet) accepts(label string) bool {
	if _, ok := s.values[label]; ok {
		return true
	}
	if len(s.values) >= maxDynamicLabels {
		return false
	}
	s.values[label] = struct{}{}
	return true
}

// LabeledBoolean is Boolean indexed by a validated label.
type LabeledBoolean struct {
	Base
	seen *labelSet
}

func NewLabeledBoolean(meta Metadata, r Recorder, errs ErrorSink) LabeledBoolean {
	meta.Kind = models.KindLabeledBoolean
	return LabeledBoolean{Base{Meta: meta, Recorder: r, Errors: errs}, newLabelSet()}
}

func (l LabeledBoolean) Get(label string) Boolean {
	resolved, errType, hasErr := resolveLabel(l.seen, label)
	if hasErr && l.Errors != nil {
		l.Errors.RecordError(context.Background(), l.Meta.Identifier(), errType, l.Meta.SendInPings)
	}
	return Boolean{Base{Meta: l.Meta, Recorder: labelBoundRecorder{l.Recorder, resolved}, Errors: l.Errors}}
}

// LabeledCounter is Counter indexed by a validated label.
type LabeledCounter struct {
	Base
	seen *labelSet
}

func NewLabeledCounter(meta Metadata, r Recorder, errs ErrorSink) LabeledCounter {
	meta.Kind = models.KindLabeledCounter
	return LabeledCounter{Base{Meta: meta, Recorder: r, Errors: errs}, newLabelSet()}
}

func (l LabeledCounter) Get(label string) Counter {
	resolved, errType, hasErr := resolveLabel(l.seen, label)
	if hasErr && l.Errors != nil {
		l.Errors.RecordError(context.Background(), l.Meta.Identifier(), errType, l.Meta.SendInPings)
	}
	return Counter{Base{Meta: l.Meta, Recorder: labelBoundRecorder{l.Recorder, resolved}, Errors: l.Errors}}
}

// LabeledString is String indexed by a validated label.
type LabeledString struct {
	Base
	seen *labelSet
}

func NewLabeledString(meta Metadata, r Recorder, errs ErrorSink) LabeledString {
	meta.Kind = models.KindLabeledString
	return LabeledString{Base{Meta: meta, Recorder: r, Errors: errs}, newLabelSet()}
}

func (l LabeledString) Get(label string) String {
	resolved, errType, hasErr := resolveLabel(l.seen, label)
	if hasErr && l.Errors != nil {
		l.Errors.RecordError(context.Background(), l.Meta.Identifier(), errType, l.Meta.SendInPings)
	}
	return String{Base{Meta: l.Meta, Recorder: labelBoundRecorder{l.Recorder, resolved}, Errors: l.Errors}}
}

// labelBoundRecorder adapts Recorder.Transform calls from a label-bound
// metric handle (e.g. the Counter returned by LabeledCounter.Get) into the
// owning labeled metric's TransformLabeled path.
type labelBoundRecorder struct {
	inner Recorder
	label string
}

func (r labelBoundRecorder) Transform(ctx context.Context, m Metadata, fn TransformFunc) error {
	return r.inner.TransformLabeled(ctx, m, r.label, fn)
}

func (r labelBoundRecorder) TransformLabeled(ctx context.Context, m Metadata, label string, fn TransformFunc) error {
	return r.inner.TransformLabeled(ctx, m, label, fn)
}
