package pingsdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shimmerdata/beacon/internal/storage"
	"github.com/shimmerdata/beacon/models"
)

type recordingObserver struct {
	seen []string
}

func (o *recordingObserver) OnPingEnqueued(documentID string) {
	o.seen = append(o.seen, documentID)
}

func TestRecordPingNotifiesObservers(t *testing.T) {
	db := New(storage.NewMemoryFactory())
	obs := &recordingObserver{}
	db.RegisterObserver(obs)

	require.NoError(t, db.RecordPing(models.PendingPing{DocumentID: "doc-1", Path: "/submit/app/baseline/1/doc-1", SubmittedAt: time.Now()}))

	assert.Equal(t, []string{"doc-1"}, obs.seen)
}

func TestScanPendingPingsPreservesInsertionOrder(t *testing.T) {
	db := New(storage.NewMemoryFactory())
	base := time.Now()
	require.NoError(t, db.RecordPing(models.PendingPing{DocumentID: "doc-1", SubmittedAt: base}))
	require.NoError(t, db.RecordPing(models.PendingPing{DocumentID: "doc-2", SubmittedAt: base.Add(time.Second)}))

	pings := db.ScanPendingPings()
	require.Len(t, pings, 2)
	assert.Equal(t, "doc-1", pings[0].DocumentID)
	assert.Equal(t, "doc-2", pings[1].DocumentID)
}

func TestDeletePingRemovesFromQueue(t *testing.T) {
	db := New(storage.NewMemoryFactory())
	require.NoError(t, db.RecordPing(models.PendingPing{DocumentID: "doc-1", SubmittedAt: time.Now()}))

	require.NoError(t, db.DeletePing("doc-1"))

	assert.Empty(t, db.ScanPendingPings())
}

func TestClearAllKeepsExemptedDocument(t *testing.T) {
	db := New(storage.NewMemoryFactory())
	require.NoError(t, db.RecordPing(models.PendingPing{DocumentID: "doc-1", SubmittedAt: time.Now()}))
	require.NoError(t, db.RecordPing(models.PendingPing{DocumentID: "deletion-request", SubmittedAt: time.Now()}))

	require.NoError(t, db.ClearAll("deletion-request"))

	pings := db.ScanPendingPings()
	require.Len(t, pings, 1)
	assert.Equal(t, "deletion-request", pings[0].DocumentID)
}
