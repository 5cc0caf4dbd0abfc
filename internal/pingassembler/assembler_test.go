package pingassembler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shimmerdata/beacon/internal/eventsdb"
	"github.com/shimmerdata/beacon/internal/metricsdb"
	"github.com/shimmerdata/beacon/internal/metricskernel"
	"github.com/shimmerdata/beacon/internal/pingsdb"
	"github.com/shimmerdata/beacon/internal/storage"
	"github.com/shimmerdata/beacon/models"
)

func newTestAssembler(t *testing.T, pingTypes map[string]models.PingType) (*Assembler, *metricsdb.DB) {
	t.Helper()
	factory := storage.NewMemoryFactory()
	mdb := metricsdb.New(factory, nil)
	edb := eventsdb.New(factory, 0, nil, nil)
	pdb := pingsdb.New(factory)

	cfg := Config{
		ApplicationID: "demo-app",
		SchemaVersion: "1",
		SDKBuild:      "beacon/1.0",
		PlatformName:  "server",
		ClientInfo: func() models.ClientInfo {
			return models.ClientInfo{ClientID: "abc-123", OS: "linux"}
		},
		PingTypeLookup: func(name string) (models.PingType, bool) {
			pt, ok := pingTypes[name]
			return pt, ok
		},
	}
	return New(cfg, factory, mdb, edb, pdb, nil), mdb
}

func TestAssembleHappyPathEnqueuesPendingPing(t *testing.T) {
	pingTypes := map[string]models.PingType{"baseline": {Name: "baseline", IncludeClientID: true}}
	a, mdb := newTestAssembler(t, pingTypes)

	meta := metricskernel.Metadata{Category: "ui", Name: "first_open", Kind: models.KindBoolean, Lifetime: models.LifetimePing, SendInPings: []string{"baseline"}}
	require.NoError(t, mdb.Transform(context.Background(), meta, func(any) (any, bool) { return true, true }))

	ok, err := a.Assemble(context.Background(), "baseline", "")
	require.NoError(t, err)
	assert.True(t, ok)

	pings := a.pings.ScanPendingPings()
	require.Len(t, pings, 1)
	assert.Equal(t, int64(0), pings[0].Payload.PingInfo.Seq)
	assert.Equal(t, true, pings[0].Payload.Metrics["boolean"]["ui.first_open"])
	assert.Contains(t, pings[0].Path, "/submit/demo-app/baseline/1/")
}

func TestAssembleDropsEmptyPingWithoutSendIfEmpty(t *testing.T) {
	pingTypes := map[string]models.PingType{"baseline": {Name: "baseline"}}
	a, _ := newTestAssembler(t, pingTypes)

	ok, err := a.Assemble(context.Background(), "baseline", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, a.pings.ScanPendingPings())
}

func TestAssembleSendIfEmptyStillSubmits(t *testing.T) {
	pingTypes := map[string]models.PingType{"baseline": {Name: "baseline", SendIfEmpty: true}}
	a, _ := newTestAssembler(t, pingTypes)

	ok, err := a.Assemble(context.Background(), "baseline", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAssembleSequenceAdvancesAndWindowChains(t *testing.T) {
	pingTypes := map[string]models.PingType{"baseline": {Name: "baseline", SendIfEmpty: true}}
	a, _ := newTestAssembler(t, pingTypes)

	_, err := a.Assemble(context.Background(), "baseline", "")
	require.NoError(t, err)
	_, err = a.Assemble(context.Background(), "baseline", "")
	require.NoError(t, err)

	pings := a.pings.ScanPendingPings()
	require.Len(t, pings, 2)
	assert.Equal(t, int64(1), pings[1].Payload.PingInfo.Seq)
	assert.Equal(t, pings[0].Payload.PingInfo.EndTime, pings[1].Payload.PingInfo.StartTime)
}

func TestAssembleStripsClientIDWhenNotIncluded(t *testing.T) {
	pingTypes := map[string]models.PingType{"baseline": {Name: "baseline", SendIfEmpty: true, IncludeClientID: false}}
	a, _ := newTestAssembler(t, pingTypes)

	_, err := a.Assemble(context.Background(), "baseline", "")
	require.NoError(t, err)

	pings := a.pings.ScanPendingPings()
	require.Len(t, pings, 1)
	assert.Empty(t, pings[0].Payload.ClientInfo.ClientID)
}
