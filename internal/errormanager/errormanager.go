// Package errormanager implements metricskernel.ErrorSink: it turns a
// metric-recording error into a labeled counter named glean.error.<type>,
// driven through the same metricsdb record path used by every other
// metric so error counters are dispatcher-serialized like any other
// recorded value. Grounded on the teacher's
// internal/telemetry/metrics/metrics.go Provider/Counter abstraction,
// re-purposed from an operational-health gauge set into user-facing,
// ping-bound error counters.
package errormanager

import (
	"context"
	"log/slog"

	"github.com/shimmerdata/beacon/internal/metricskernel"
	"github.com/shimmerdata/beacon/models"
)

// recognizedErrorTypes is the closed set of error classes the error
// manager will record; anything else is logged and dropped rather than
// surfacing an unbounded label cardinality.
var recognizedErrorTypes = map[models.ErrorType]bool{
	models.ErrorInvalidValue:    true,
	models.ErrorInvalidLabel:    true,
	models.ErrorInvalidState:    true,
	models.ErrorInvalidOverflow: true,
	models.ErrorInvalidType:     true,
}

// Manager implements metricskernel.ErrorSink, recording every reported
// error as the labeled counter glean.error.<errType>, labeled with the
// offending metric's identifier, never itself reporting an error.
type Manager struct {
	recorder metricskernel.Recorder
	logger   *slog.Logger
}

// New binds a Manager to recorder, the same metricsdb.DB every other
// metric type records through.
func New(recorder metricskernel.Recorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{recorder: recorder, logger: logger}
}

// RecordError implements metricskernel.ErrorSink.
func (m *Manager) RecordError(ctx context.Context, metricID string, errType models.ErrorType, sendInPings []string) {
	if !recognizedErrorTypes[errType] {
		m.logger.Warn("errormanager: unrecognized error type", "metric", metricID, "errorType", errType)
		return
	}
	meta := metricskernel.Metadata{
		Category:    "glean",
		Name:        "error." + string(errType),
		Kind:        models.KindLabeledCounter,
		Lifetime:    models.LifetimePing,
		SendInPings: sendInPings,
	}
	err := m.recorder.TransformLabeled(ctx, meta, metricID, func(current any) (any, bool) {
		n, _ := current.(int64)
		if n >= MaxErrorCounterValue {
			return n, false
		}
		return n + 1, true
	})
	if err != nil {
		m.logger.Error("errormanager: record failed", "metric", metricID, "errorType", errType, "error", err)
	}
}

// MaxErrorCounterValue mirrors the counter metric's own saturation ceiling
// so an error-counting storm cannot overflow its backing int64 forever.
const MaxErrorCounterValue = metricskernel.MaxCounterValue
