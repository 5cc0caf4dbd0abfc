// Package metricskernel implements the base metric contract shared by every
// concrete metric type: identity, lifetime, the reserved-prefix convention,
// and the validate/record/transform pipeline each metric type's Set/Add/...
// method drives. It knows nothing about storage; it only decides whether a
// raw value is acceptable and how to fold it into whatever the metrics
// database currently holds.
package metricskernel

import (
	"context"

	"github.com/shimmerdata/beacon/models"
)

// Recorder is the narrow seam the kernel uses to reach the metrics database
// without importing it directly, keeping the dependency edge one-way
// (metricsdb depends on metricskernel's types, not the other way around).
type Recorder interface {
	// Transform applies fn to the metric's current stored payload under
	// every ping named in sendInPings, persisting the result. fn receives
	// the current internal value (nil if absent) and returns the new
	// internal value plus whether the update should be applied at all.
	Transform(ctx context.Context, m Metadata, fn TransformFunc) error

	// TransformLabeled is Transform for a labeled metric's one label: the
	// stored path gains an extra <label> segment under the metric's id, so
	// each label accumulates independently until unfolded at ping assembly.
	TransformLabeled(ctx context.Context, m Metadata, label string, fn TransformFunc) error
}

// TransformFunc computes a metric's next internal value from its current
// one. ok=false means "no change" (used by validation failures that must
// still report an error without mutating storage).
type TransformFunc func(current any) (next any, ok bool)

// ErrorSink is the narrow seam used to report a recording error against a
// metric without the kernel depending on the error manager package.
// sendInPings is the offending metric's own ping bindings: the spec records
// the error counter in every ping the metric itself was bound to.
type ErrorSink interface {
	RecordError(ctx context.Context, metricID string, errType models.ErrorType, sendInPings []string)
}

// Metadata is the identity and policy shared by every metric instance.
type Metadata struct {
	Category    string
	Name        string
	Kind        models.Kind
	Lifetime    models.Lifetime
	SendInPings []string
	Disabled    bool
}

// Identifier returns the canonical "category.name" form.
func (m Metadata) Identifier() string {
	return models.Identifier(m.Category, m.Name)
}

// IsReserved reports whether this metric's identifier is internal-only and
// must never surface in an external ping payload.
func (m Metadata) IsReserved() bool {
	return models.IsReserved(m.Identifier())
}

// Base is embedded by every concrete metric type. It binds Metadata to the
// Recorder/ErrorSink seams and implements the disabled-metric short-circuit
// invariant: a disabled metric never records, never validates, and never
// produces an error.
type Base struct {
	Meta     Metadata
	Recorder Recorder
	Errors   ErrorSink
}

// Outcome is what a metric type's validation step reports back to Record.
type Outcome struct {
	Next    any              // the internal value to persist, when Persist is true
	Persist bool             // whether Next should be written to storage
	HasErr  bool             // whether a recording error should be reported
	ErrType models.ErrorType // the error class to report when HasErr is true
}

// Record runs the validate/record pipeline: if the metric is disabled the
// call is a silent no-op; otherwise validate is invoked against the current
// stored internal value. Its Outcome.Next is persisted iff Persist is true
// (truncation-style corrections persist a clamped value while still
// reporting an error), and Outcome.ErrType is reported through the
// ErrorSink iff HasErr is true. A validation failure never reaches storage
// unless Persist is explicitly set.
func (b Base) Record(ctx context.Context, validate func(current any) Outcome) {
	if b.Meta.Disabled {
		return
	}
	var outcome Outcome
	_ = b.Recorder.Transform(ctx, b.Meta, func(current any) (any, bool) {
		outcome = validate(current)
		return outcome.Next, outcome.Persist
	})
	if outcome.HasErr && b.Errors != nil {
		b.Errors.RecordError(ctx, b.Meta.Identifier(), outcome.ErrType, b.Meta.SendInPings)
	}
}

// RecordLabeled is Record for one label of a labeled metric.
func (b Base) RecordLabeled(ctx context.Context, label string, validate func(current any) Outcome) {
	if b.Meta.Disabled {
		return
	}
	var outcome Outcome
	_ = b.Recorder.TransformLabeled(ctx, b.Meta, label, func(current any) (any, bool) {
		outcome = validate(current)
		return outcome.Next, outcome.Persist
	})
	if outcome.HasErr && b.Errors != nil {
		b.Errors.RecordError(ctx, b.Meta.Identifier(), outcome.ErrType, b.Meta.SendInPings)
	}
}
