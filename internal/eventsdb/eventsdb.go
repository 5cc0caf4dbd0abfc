// Package eventsdb is the append-only event log layered on the storage
// adapter: one ordered event list per ping, with a restart marker inserted
// across process lifetimes and an eager-submission hook once a ping's list
// reaches a configured size.
package eventsdb

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shimmerdata/beacon/internal/metricskernel"
	"github.com/shimmerdata/beacon/internal/storage"
)

// SubmitFunc is invoked when a ping's event list reaches maxEvents, letting
// the orchestrator trigger an eager submission without eventsdb depending on
// the assembler directly.
type SubmitFunc func(ctx context.Context, ping string)

// DB is the events sub-store, rooted at "events" with one list per ping.
type DB struct {
	store     storage.Store
	epoch     time.Time
	maxEvents int
	submit    SubmitFunc
	logger    *slog.Logger

	mu     sync.Mutex
	lastTS int64
}

// New binds a DB to the "events" root-key. maxEvents<=0 disables eager
// submission.
func New(factory storage.Factory, maxEvents int, submit SubmitFunc, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		store:     factory("events"),
		epoch:     time.Now(),
		maxEvents: maxEvents,
		submit:    submit,
		logger:    logger,
	}
}

// timestamp returns milliseconds elapsed since the database's epoch,
// clamped to be monotonically non-decreasing: time.Time carries a monotonic
// reading alongside wall-clock, so Sub is immune to NTP step adjustments as
// long as neither operand has had its monotonic reading stripped (neither
// has here), but the clamp also protects against the epoch itself having
// been constructed from a stripped value in a future refactor.
func (d *DB) timestamp() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts := time.Since(d.epoch).Milliseconds()
	if ts < d.lastTS {
		ts = d.lastTS
	}
	d.lastTS = ts
	return ts
}

type storedEvent struct {
	Timestamp int64             `json:"timestamp"`
	Category  string            `json:"category"`
	Name      string            `json:"name"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// RecordEvent implements metricskernel.EventRecorder: it appends ev under
// every ping the metric is bound to, triggering eager submission for any
// ping whose list reaches maxEvents.
func (d *DB) RecordEvent(ctx context.Context, meta metricskernel.Metadata, extra map[string]string) error {
	ev := storedEvent{Timestamp: d.timestamp(), Category: meta.Category, Name: meta.Name, Extra: extra}
	for _, ping := range meta.SendInPings {
		d.append(ctx, ping, ev)
	}
	return nil
}

func (d *DB) append(ctx context.Context, ping string, ev storedEvent) {
	path := storage.Index{ping}
	if err := d.store.Update(path, func(current any) any {
		list, _ := current.([]any)
		return append(list, any(ev))
	}); err != nil {
		d.logger.Error("eventsdb: append failed", "ping", ping, "error", err)
		return
	}
	d.maybeSubmit(ctx, ping)
}

func (d *DB) maybeSubmit(ctx context.Context, ping string) {
	if d.maxEvents <= 0 || d.submit == nil {
		return
	}
	current, ok := d.store.Get(storage.Index{ping})
	if !ok {
		return
	}
	list, ok := current.([]any)
	if ok && len(list) >= d.maxEvents {
		d.submit(ctx, ping)
	}
}

// InitPing appends a restart marker to the end of a pre-existing event list
// for ping, run once at orchestrator startup per ping. A ping with no prior
// events gets no marker: the restart marker exists only to separate event
// sequences across process lifetimes, and there is no prior sequence to
// separate from on a ping's first run.
func (d *DB) InitPing(ctx context.Context, ping string) {
	current, ok := d.store.Get(storage.Index{ping})
	if !ok {
		return
	}
	if list, ok := current.([]any); !ok || len(list) == 0 {
		return
	}
	d.append(ctx, ping, storedEvent{Timestamp: d.timestamp(), Category: "glean", Name: "restart"})
}

// GetEvents returns a snapshot of ping's event list in the wire shape the
// ping envelope's "events" array uses.
func (d *DB) GetEvents(ping string) []map[string]any {
	current, ok := d.store.Get(storage.Index{ping})
	if !ok {
		return nil
	}
	list, ok := current.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, raw := range list {
		ev, ok := raw.(storedEvent)
		if !ok {
			continue
		}
		entry := map[string]any{"timestamp": ev.Timestamp, "category": ev.Category, "name": ev.Name}
		if len(ev.Extra) > 0 {
			entry["extra"] = ev.Extra
		}
		out = append(out, entry)
	}
	return out
}

// Clear erases ping's event list, run once its events have been folded into
// a submitted envelope.
func (d *DB) Clear(ping string) error {
	return d.store.Delete(storage.Index{ping})
}

// ClearAll erases every ping's event list.
func (d *DB) ClearAll() error {
	return d.store.Delete(storage.Index{})
}
