// Package pingsdb is the durable FIFO of assembled-but-not-yet-uploaded
// pings, grounded on the teacher's resource-manager bookkeeping idiom
// (guarded map plus a background-notified channel) regeneralized from an
// LRU page cache with a checkpoint writer into an insertion-ordered pending
// queue with upload-manager observers.
package pingsdb

import (
	"sync"
	"time"

	"github.com/shimmerdata/beacon/internal/storage"
	"github.com/shimmerdata/beacon/models"
)

// Observer is notified whenever a new ping is recorded, the seam the upload
// manager uses to wake its worker loop without polling.
type Observer interface {
	OnPingEnqueued(documentID string)
}

// DB is the pending-pings sub-store, rooted at "pendingPings" and keyed by
// documentId in insertion order.
type DB struct {
	store storage.Store

	mu    sync.Mutex
	order []string
	obs   []Observer
}

// New scans the "pendingPings" root-key for any pings left over from a
// prior process lifetime and orders them by submission time, so that
// ScanPendingPings returns them in insertion order. Observers are not
// notified of these leftover pings.
func New(factory storage.Factory) *DB {
	d := &DB{store: factory("pendingPings")}
	d.order = d.scanExistingOrder()
	return d
}

func (d *DB) scanExistingOrder() []string {
	raw, ok := d.store.Get(storage.Index{})
	if !ok {
		return nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	order := make([]string, 0, len(obj))
	type withTime = struct {
		id string
		at time.Time
	}
	entries := make([]withTime, 0, len(obj))
	for id, v := range obj {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		submittedAt, _ := entry["submittedAt"].(time.Time)
		entries = append(entries, withTime{id: id, at: submittedAt})
	}
	sortByTime(entries)
	for _, e := range entries {
		order = append(order, e.id)
	}
	return order
}

func sortByTime(entries []struct {
	id string
	at time.Time
}) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].at.After(entries[j].at) {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

// RegisterObserver adds obs to the set notified on every RecordPing.
func (d *DB) RegisterObserver(obs Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.obs = append(d.obs, obs)
}

// RecordPing persists p and notifies observers.
func (d *DB) RecordPing(p models.PendingPing) error {
	if err := d.store.Update(storage.Index{p.DocumentID}, func(any) any {
		return map[string]any{
			"path":        p.Path,
			"payload":     p.Payload,
			"headers":     p.Headers,
			"submittedAt": p.SubmittedAt,
		}
	}); err != nil {
		return err
	}
	d.mu.Lock()
	d.order = append(d.order, p.DocumentID)
	obs := append([]Observer(nil), d.obs...)
	d.mu.Unlock()
	for _, o := range obs {
		o.OnPingEnqueued(p.DocumentID)
	}
	return nil
}

// DeletePing removes p from the pending queue, run once it has been
// uploaded successfully or given up on.
func (d *DB) DeletePing(documentID string) error {
	if err := d.store.Delete(storage.Index{documentID}); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, id := range d.order {
		if id == documentID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// ScanPendingPings returns every pending ping in insertion order.
func (d *DB) ScanPendingPings() []models.PendingPing {
	d.mu.Lock()
	order := append([]string(nil), d.order...)
	d.mu.Unlock()

	out := make([]models.PendingPing, 0, len(order))
	for _, id := range order {
		raw, ok := d.store.Get(storage.Index{id})
		if !ok {
			continue
		}
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		p := models.PendingPing{DocumentID: id}
		p.Path, _ = entry["path"].(string)
		p.Payload, _ = entry["payload"].(models.Envelope)
		if headers, ok := entry["headers"].(map[string]string); ok {
			p.Headers = headers
		}
		p.SubmittedAt, _ = entry["submittedAt"].(time.Time)
		out = append(out, p)
	}
	return out
}

// ClearAll drops every pending ping except one exempted documentID (for
// example an in-flight deletion-request ping); pass "" to drop everything.
func (d *DB) ClearAll(exceptDocumentID string) error {
	d.mu.Lock()
	kept := make([]string, 0, 1)
	toDelete := make([]string, 0, len(d.order))
	for _, id := range d.order {
		if id == exceptDocumentID && exceptDocumentID != "" {
			kept = append(kept, id)
			continue
		}
		toDelete = append(toDelete, id)
	}
	d.order = kept
	d.mu.Unlock()

	for _, id := range toDelete {
		if err := d.store.Delete(storage.Index{id}); err != nil {
			return err
		}
	}
	return nil
}
