package metricskernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shimmerdata/beacon/models"
)

// fakeRecorder is an in-memory stand-in for metricsdb, sufficient to
// exercise the kernel's validate/record pipeline in isolation.
type fakeRecorder struct {
	values  map[string]any
	labeled map[string]map[string]any
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{values: map[string]any{}, labeled: map[string]map[string]any{}}
}

func (f *fakeRecorder) Transform(ctx context.Context, m Metadata, fn TransformFunc) error {
	current := f.values[m.Identifier()]
	next, ok := fn(current)
	if ok {
		f.values[m.Identifier()] = next
	}
	return nil
}

func (f *fakeRecorder) TransformLabeled(ctx context.Context, m Metadata, label string, fn TransformFunc) error {
	inner, ok := f.labeled[m.Identifier()]
	if !ok {
		inner = map[string]any{}
		f.labeled[m.Identifier()] = inner
	}
	next, persist := fn(inner[label])
	if persist {
		inner[label] = next
	}
	return nil
}

type fakeErrors struct{ types []models.ErrorType }

func (f *fakeErrors) RecordError(ctx context.Context, metricID string, errType models.ErrorType, sendInPings []string) {
	f.types = append(f.types, errType)
}

func TestCounterSaturatesAtMax(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	c := NewCounter(Metadata{Name: "c", SendInPings: []string{"p"}}, r, errs)

	c.Add(context.Background(), MaxCounterValue)
	c.Add(context.Background(), MaxCounterValue)

	assert.Equal(t, MaxCounterValue, r.values["c"])
}

func TestCounterRejectsNonPositiveAmount(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	c := NewCounter(Metadata{Name: "c", SendInPings: []string{"p"}}, r, errs)

	c.Add(context.Background(), -1)

	assert.Nil(t, r.values["c"])
	require.Len(t, errs.types, 1)
	assert.Equal(t, models.ErrorInvalidValue, errs.types[0])
}

func TestQuantityRejectsNegative(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	q := NewQuantity(Metadata{Name: "q", SendInPings: []string{"p"}}, r, errs)

	q.Set(context.Background(), -5)

	assert.Nil(t, r.values["q"])
	require.Len(t, errs.types, 1)
}

func TestStringTruncatesAndReportsOverflow(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	s := NewString(Metadata{Name: "s", SendInPings: []string{"p"}}, r, errs)

	long := make([]byte, MaxStringLength+10)
	for i := range long {
		long[i] = 'a'
	}
	s.Set(context.Background(), string(long))

	assert.Len(t, r.values["s"], MaxStringLength)
	require.Len(t, errs.types, 1)
	assert.Equal(t, models.ErrorInvalidOverflow, errs.types[0])
}

func TestUUIDRejectsMalformedValue(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	u := NewUUID(Metadata{Name: "u", SendInPings: []string{"p"}}, r, errs)

	u.Set(context.Background(), "not-a-uuid")

	assert.Nil(t, r.values["u"])
	require.Len(t, errs.types, 1)
	assert.Equal(t, models.ErrorInvalidValue, errs.types[0])
}

func TestDisabledMetricNeverRecordsOrErrors(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	c := NewCounter(Metadata{Name: "c", Disabled: true, SendInPings: []string{"p"}}, r, errs)

	c.Add(context.Background(), -100)

	assert.Nil(t, r.values["c"])
	assert.Empty(t, errs.types)
}

func TestLabeledCounterFallsBackToOtherOnInvalidLabel(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	lc := NewLabeledCounter(Metadata{Name: "errs", SendInPings: []string{"p"}}, r, errs)

	lc.Get("Not Valid!").Add(context.Background(), 1)

	assert.EqualValues(t, 1, r.labeled["errs"][OtherLabel])
	require.Len(t, errs.types, 1)
	assert.Equal(t, models.ErrorInvalidLabel, errs.types[0])
}

func TestLabeledCounterOverflowFallsBackToOther(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	lc := NewLabeledCounter(Metadata{Name: "errs", SendInPings: []string{"p"}}, r, errs)

	for i := 0; i < maxDynamicLabels; i++ {
		lc.Get(string(rune('a' + i))).Add(context.Background(), 1)
	}
	lc.Get("overflow").Add(context.Background(), 1)

	assert.EqualValues(t, 1, r.labeled["errs"][OtherLabel])
}

func TestExponentialEdgesAreStrictlyNonDecreasing(t *testing.T) {
	edges := ExponentialEdges(1, 60000, 50)
	for i := 1; i < len(edges); i++ {
		assert.GreaterOrEqual(t, edges[i], edges[i-1])
	}
	assert.GreaterOrEqual(t, edges[len(edges)-1], uint64(60000))
}

func TestTimingDistributionAccumulatesIntoFunctionalHistogram(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	td := NewTimingDistribution(Metadata{Name: "load", SendInPings: []string{"p"}}, models.Millisecond, r, errs)

	td.Accumulate(context.Background(), 10*time.Millisecond)
	td.Accumulate(context.Background(), 20*time.Millisecond)

	hv, ok := r.values["load"].(HistogramValue)
	require.True(t, ok)
	assert.EqualValues(t, 30, hv.Sum)
}

func TestTimingDistributionRejectsNegativeDuration(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	td := NewTimingDistribution(Metadata{Name: "load", SendInPings: []string{"p"}}, models.Millisecond, r, errs)

	td.Accumulate(context.Background(), -1*time.Millisecond)

	assert.Nil(t, r.values["load"])
	require.Len(t, errs.types, 1)
}

func TestCustomDistributionClampsOutOfRangeSamples(t *testing.T) {
	r := newFakeRecorder()
	errs := &fakeErrors{}
	cd := NewCustomDistribution(Metadata{Name: "cd", SendInPings: []string{"p"}}, 1, 100, 10, r, errs)

	cd.Accumulate(context.Background(), 100000)

	hv, ok := r.values["cd"].(HistogramValue)
	require.True(t, ok)
	assert.EqualValues(t, 100000, hv.Sum)
	assert.Len(t, hv.Counts, 1)
}
