package metricsdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shimmerdata/beacon/internal/metricskernel"
	"github.com/shimmerdata/beacon/internal/storage"
	"github.com/shimmerdata/beacon/models"
)

type noopErrorSink struct {
	recorded []models.ErrorType
}

func (s *noopErrorSink) RecordError(ctx context.Context, metricID string, errType models.ErrorType, sendInPings []string) {
	s.recorded = append(s.recorded, errType)
}

func TestRecordAndGetMetricRoundTrip(t *testing.T) {
	db := New(storage.NewMemoryFactory(), nil)
	errs := &noopErrorSink{}
	meta := metricskernel.Metadata{Category: "ui", Name: "first_open", Lifetime: models.LifetimePing, SendInPings: []string{"baseline"}}
	b := metricskernel.NewBoolean(meta, db, errs)

	b.Set(context.Background(), true)

	payload, ok := db.GetMetric("baseline", b.Meta)
	require.True(t, ok)
	assert.Equal(t, true, payload)
}

func TestGetMetricDeletesCorruptValue(t *testing.T) {
	db := New(storage.NewMemoryFactory(), nil)
	meta := metricskernel.Metadata{Category: "", Name: "x", Kind: models.KindBoolean, Lifetime: models.LifetimeUser, SendInPings: []string{"baseline"}}
	store := db.storeFor(models.LifetimeUser)
	require.NoError(t, store.Update(storage.Index{"baseline", string(models.KindBoolean), "x"}, func(any) any { return 42 }))

	payload, ok := db.GetMetric("baseline", meta)
	assert.False(t, ok)
	assert.Nil(t, payload)

	_, stillThere := store.Get(storage.Index{"baseline", string(models.KindBoolean), "x"})
	assert.False(t, stillThere)
}

func TestDisabledMetricNeverRecords(t *testing.T) {
	db := New(storage.NewMemoryFactory(), nil)
	errs := &noopErrorSink{}
	meta := metricskernel.Metadata{Category: "ui", Name: "noop", Lifetime: models.LifetimePing, SendInPings: []string{"baseline"}, Disabled: true}
	b := metricskernel.NewBoolean(meta, db, errs)

	b.Set(context.Background(), true)

	_, ok := db.GetMetric("baseline", b.Meta)
	assert.False(t, ok)
}

func TestReservedPrefixExcludedFromPingMetrics(t *testing.T) {
	db := New(storage.NewMemoryFactory(), nil)
	errs := &noopErrorSink{}
	internal := metricskernel.NewBoolean(metricskernel.Metadata{Name: models.ReservedPrefix + "internal_flag", Lifetime: models.LifetimeUser, SendInPings: []string{"baseline"}}, db, errs)
	external := metricskernel.NewBoolean(metricskernel.Metadata{Name: "visible_flag", Lifetime: models.LifetimeUser, SendInPings: []string{"baseline"}}, db, errs)

	internal.Set(context.Background(), true)
	external.Set(context.Background(), true)

	snapshot := db.GetPingMetrics("baseline", false)
	_, hasVisible := snapshot[string(models.KindBoolean)]["visible_flag"]
	assert.True(t, hasVisible)
	_, hasInternal := snapshot[string(models.KindBoolean)][models.ReservedPrefix+"internal_flag"]
	assert.False(t, hasInternal)
}

func TestLabeledCounterUnfoldsIntoLabeledKind(t *testing.T) {
	db := New(storage.NewMemoryFactory(), nil)
	errs := &noopErrorSink{}
	lc := metricskernel.NewLabeledCounter(metricskernel.Metadata{Name: "errors", Lifetime: models.LifetimePing, SendInPings: []string{"baseline"}}, db, errs)

	lc.Get("net").Add(context.Background(), 1)
	lc.Get("fs").Add(context.Background(), 2)

	snapshot := db.GetPingMetrics("baseline", false)
	labeled, ok := snapshot[string(models.KindLabeledCounter)]["errors"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, labeled["net"])
	assert.EqualValues(t, 2, labeled["fs"])

	_, plainKeyExists := snapshot[string(models.KindCounter)]
	assert.False(t, plainKeyExists)
}

func TestClearPingLifetimeAfterSnapshot(t *testing.T) {
	db := New(storage.NewMemoryFactory(), nil)
	errs := &noopErrorSink{}
	meta := metricskernel.Metadata{Name: "session_count", Lifetime: models.LifetimePing, SendInPings: []string{"baseline"}}
	c := metricskernel.NewCounter(meta, db, errs)
	c.Add(context.Background(), 1)

	snap := db.GetPingMetrics("baseline", true)
	assert.Contains(t, snap[string(models.KindCounter)], "session_count")

	_, ok := db.GetMetric("baseline", meta)
	assert.False(t, ok)
}

func TestClearAllErasesEveryLifetime(t *testing.T) {
	db := New(storage.NewMemoryFactory(), nil)
	errs := &noopErrorSink{}
	meta := metricskernel.Metadata{Name: "x", Lifetime: models.LifetimeUser, SendInPings: []string{"baseline"}}
	b := metricskernel.NewBoolean(meta, db, errs)
	b.Set(context.Background(), true)

	require.NoError(t, db.ClearAll())

	_, ok := db.GetMetric("baseline", meta)
	assert.False(t, ok)
}
