// Package metricsdb is the lifetime-partitioned metrics store layered on
// the storage adapter: three named sub-stores (user/ping/application
// lifetime), keyed `<pingName>/<metricKind>/<metricIdentifier>`, with
// tolerant-to-corruption reads and labeled-metric unfolding at ping
// assembly time.
package metricsdb

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shimmerdata/beacon/internal/metricskernel"
	"github.com/shimmerdata/beacon/internal/storage"
	"github.com/shimmerdata/beacon/models"
)

// DB presents the three lifetime sub-stores as one Recorder.
type DB struct {
	user, ping, app storage.Store
	logger          *slog.Logger
}

// New binds a DB to the three lifetime root-keys a storage.Factory hands
// out, matching the "one root-key per sub-store" shape of the storage
// adapter's reference drivers.
func New(factory storage.Factory, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		user:   factory("userLifetimeMetrics"),
		ping:   factory("pingLifetimeMetrics"),
		app:    factory("appLifetimeMetrics"),
		logger: logger,
	}
}

func (d *DB) storeFor(lifetime models.Lifetime) storage.Store {
	switch lifetime {
	case models.LifetimeUser:
		return d.user
	case models.LifetimeApplication:
		return d.app
	default:
		return d.ping
	}
}

// Transform implements metricskernel.Recorder: fn is applied under every
// ping named in meta.SendInPings, in the sub-store selected by
// meta.Lifetime. A fn that reports ok=false leaves storage untouched.
func (d *DB) Transform(ctx context.Context, meta metricskernel.Metadata, fn metricskernel.TransformFunc) error {
	store := d.storeFor(meta.Lifetime)
	for _, ping := range meta.SendInPings {
		path := storage.Index{ping, string(meta.Kind), meta.Identifier()}
		current, _ := store.Get(path)
		next, ok := fn(current)
		if !ok {
			continue
		}
		if err := store.Update(path, func(any) any { return next }); err != nil {
			d.logger.Error("metricsdb: update failed", "metric", meta.Identifier(), "ping", ping, "error", err)
		}
	}
	return nil
}

// TransformLabeled is Transform for one label of a labeled metric, storing
// under an extra <label> path segment beneath the metric's identifier.
func (d *DB) TransformLabeled(ctx context.Context, meta metricskernel.Metadata, label string, fn metricskernel.TransformFunc) error {
	store := d.storeFor(meta.Lifetime)
	for _, ping := range meta.SendInPings {
		path := storage.Index{ping, string(meta.Kind), meta.Identifier(), label}
		current, _ := store.Get(path)
		next, ok := fn(current)
		if !ok {
			continue
		}
		if err := store.Update(path, func(any) any { return next }); err != nil {
			d.logger.Error("metricsdb: labeled update failed", "metric", meta.Identifier(), "label", label, "ping", ping, "error", err)
		}
	}
	return nil
}

// GetMetric returns the payload-projected value of one metric within one
// ping, or ok=false if absent. A value that fails its kind's stored-schema
// check is deleted and reported absent, tolerating out-of-band corruption.
func (d *DB) GetMetric(ping string, meta metricskernel.Metadata) (any, bool) {
	store := d.storeFor(meta.Lifetime)
	path := storage.Index{ping, string(meta.Kind), meta.Identifier()}
	raw, ok := store.Get(path)
	if !ok {
		return nil, false
	}
	handler, known := metricskernel.Lookup(meta.Kind)
	if !known {
		return raw, true
	}
	if !handler.ValidateStored(raw) {
		_ = store.Delete(path)
		return nil, false
	}
	return handler.Payload(raw), true
}

// GetPingMetrics merges the user/ping/application sub-stores for one ping
// into the kind -> id -> payload shape a ping envelope's "metrics" section
// uses, skipping reserved-prefix identifiers and unfolding labeled entries.
// When clearPingLifetime is true, the ping-lifetime subtree for this ping is
// erased after the snapshot is taken.
func (d *DB) GetPingMetrics(ping string, clearPingLifetime bool) map[string]map[string]any {
	result := make(map[string]map[string]any)
	for _, store := range []storage.Store{d.user, d.ping, d.app} {
		d.mergeInto(result, store, ping)
	}
	if clearPingLifetime {
		_ = d.ping.Delete(storage.Index{ping})
	}
	return result
}

func (d *DB) mergeInto(result map[string]map[string]any, store storage.Store, ping string) {
	subtree, ok := store.Get(storage.Index{ping})
	if !ok {
		return
	}
	byKind, ok := subtree.(map[string]any)
	if !ok {
		return
	}
	for kind, idsRaw := range byKind {
		ids, ok := idsRaw.(map[string]any)
		if !ok {
			continue
		}
		handler, known := metricskernel.Lookup(models.Kind(kind))
		labeled := strings.HasPrefix(kind, "labeled_")
		for id, value := range ids {
			if models.IsReserved(id) {
				continue
			}
			if labeled {
				d.mergeLabeled(result, store, ping, kind, id, value, handler, known)
				continue
			}
			if known && !handler.ValidateStored(value) {
				_ = store.Delete(storage.Index{ping, kind, id})
				continue
			}
			payload := value
			if known {
				payload = handler.Payload(value)
			}
			dest, ok := result[kind]
			if !ok {
				dest = make(map[string]any)
				result[kind] = dest
			}
			dest[id] = payload
		}
	}
}

func (d *DB) mergeLabeled(result map[string]map[string]any, store storage.Store, ping, kind, id string, value any, handler metricskernel.Handler, known bool) {
	labels, ok := value.(map[string]any)
	if !ok {
		return
	}
	out := make(map[string]any, len(labels))
	for label, internal := range labels {
		if known && !handler.ValidateStored(internal) {
			_ = store.Delete(storage.Index{ping, kind, id, label})
			continue
		}
		payload := internal
		if known {
			payload = handler.Payload(internal)
		}
		out[label] = payload
	}
	dest, ok := result[kind]
	if !ok {
		dest = make(map[string]any)
		result[kind] = dest
	}
	dest[id] = out
}

// Clear erases the subtree for lifetime, scoped to ping when non-empty or
// the whole sub-store otherwise.
func (d *DB) Clear(lifetime models.Lifetime, ping string) error {
	store := d.storeFor(lifetime)
	if ping == "" {
		return store.Delete(storage.Index{})
	}
	return store.Delete(storage.Index{ping})
}

// ClearAll erases all three lifetime sub-stores in their entirety.
func (d *DB) ClearAll() error {
	for _, store := range []storage.Store{d.user, d.ping, d.app} {
		if err := store.Delete(storage.Index{}); err != nil {
			return err
		}
	}
	return nil
}
