// Package pingassembler builds the wire envelope for one ping submission:
// loading the sequence counter, computing the start/end window, snapshotting
// metrics and events, and handing the result to the pings database for
// durable enqueue. Grounded on the teacher's document assembler (sequence
// counters and accumulated stats re-purposed from a crawl-page pipeline into
// one ping's metric/event snapshot).
package pingassembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shimmerdata/beacon/internal/eventsdb"
	"github.com/shimmerdata/beacon/internal/metricsdb"
	"github.com/shimmerdata/beacon/internal/pingsdb"
	"github.com/shimmerdata/beacon/internal/storage"
	"github.com/shimmerdata/beacon/models"
)

// ClientInfoFunc returns the client_info block current at assembly time,
// letting the orchestrator own client_id/first_run_date/OS derivation.
type ClientInfoFunc func() models.ClientInfo

// Plugin observes, and may mutate, an assembled envelope immediately
// before it is persisted for upload: the seam the Configuration `plugins`
// key binds into.
type Plugin interface {
	OnAssemble(ping string, envelope *models.Envelope)
}

// Config is the static, rarely-changing configuration the assembler needs
// per build.
type Config struct {
	ApplicationID string
	SchemaVersion string
	SDKBuild      string
	PlatformName  string
	ClientInfo    ClientInfoFunc
	PingTypeLookup func(name string) (models.PingType, bool)

	// DebugViewTag and SourceTags add the optional X-Debug-ID/X-Source-Tags
	// headers to every outgoing request; the caller is responsible for
	// validating them against the regexes named in the component spec
	// before assigning them here.
	DebugViewTag string
	SourceTags   []string

	Plugins []Plugin
}

// Assembler builds and persists ping envelopes.
type Assembler struct {
	cfg     Config
	metrics *metricsdb.DB
	events  *eventsdb.DB
	pings   *pingsdb.DB
	logger  *slog.Logger

	seqStore storage.Store // per-ping sequence counter, user lifetime
	startStore storage.Store // per-ping next start_time, user lifetime

	mu        sync.Mutex
	processStart time.Time
}

// New builds an Assembler. factory supplies the "pingSequenceNumbers" and
// "pingStartTimes" sub-stores, so a fresh process resumes sequence
// numbering and window boundaries across restarts.
func New(cfg Config, factory storage.Factory, metrics *metricsdb.DB, events *eventsdb.DB, pings *pingsdb.DB, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		cfg:          cfg,
		metrics:      metrics,
		events:       events,
		pings:        pings,
		logger:       logger,
		seqStore:     factory("pingSequenceNumbers"),
		startStore:   factory("pingStartTimes"),
		processStart: time.Now(),
	}
}

// nextSeq loads and increments the per-ping sequence counter.
func (a *Assembler) nextSeq(ping string) (int64, error) {
	var seq int64
	err := a.seqStore.Update(storage.Index{ping}, func(current any) any {
		if n, ok := current.(int64); ok {
			seq = n
		} else {
			seq = 0
		}
		return seq + 1
	})
	return seq, err
}

// window computes [start_time, end_time) for ping, persisting end_time as
// the next start_time. On a ping's first submission, start_time is derived
// from process start.
func (a *Assembler) window(ping string) (start, end time.Time, err error) {
	end = time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	current, ok := a.startStore.Get(storage.Index{ping})
	if ok {
		if ts, ok := current.(time.Time); ok {
			start = ts
		}
	}
	if start.IsZero() {
		start = a.processStart
	}
	err = a.startStore.Update(storage.Index{ping}, func(any) any { return end })
	return start, end, err
}

// minutePrecision renders t to minute precision with timezone offset, per
// the wire convention for start_time/end_time.
func minutePrecision(t time.Time) string {
	return t.Truncate(time.Minute).Format("2006-01-02T15:04-07:00")
}

// Assemble builds and persists the envelope for ping, returning false with
// no error if the ping was silently dropped (empty snapshot and
// !sendIfEmpty). reason is optional, surfaced as ping_info.reason.
func (a *Assembler) Assemble(ctx context.Context, ping, reason string) (bool, error) {
	pingType, known := a.cfg.PingTypeLookup(ping)
	if !known {
		return false, fmt.Errorf("pingassembler: unknown ping type %q", ping)
	}

	metricsSnapshot := a.metrics.GetPingMetrics(ping, false)
	eventsSnapshot := a.events.GetEvents(ping)

	if len(metricsSnapshot) == 0 && len(eventsSnapshot) == 0 && !pingType.SendIfEmpty {
		return false, nil
	}

	seq, err := a.nextSeq(ping)
	if err != nil {
		return false, err
	}
	start, end, err := a.window(ping)
	if err != nil {
		return false, err
	}

	clientInfo := a.cfg.ClientInfo()
	clientInfo.TelemetrySDKBld = a.cfg.SDKBuild
	if !pingType.IncludeClientID {
		clientInfo.ClientID = ""
	}

	envelope := models.Envelope{
		ClientInfo: clientInfo,
		PingInfo: models.PingInfo{
			Seq:       seq,
			StartTime: minutePrecision(start),
			EndTime:   minutePrecision(end),
			Reason:    reason,
		},
		Metrics: metricsSnapshot,
	}
	for _, e := range eventsSnapshot {
		var ev models.Event
		ev.Timestamp, _ = e["timestamp"].(int64)
		ev.Category, _ = e["category"].(string)
		ev.Name, _ = e["name"].(string)
		ev.Extra, _ = e["extra"].(map[string]string)
		envelope.Events = append(envelope.Events, ev)
	}

	for _, p := range a.cfg.Plugins {
		p.OnAssemble(ping, &envelope)
	}

	documentID := uuid.NewString()
	path := fmt.Sprintf("/submit/%s/%s/%s/%s", a.cfg.ApplicationID, ping, a.cfg.SchemaVersion, documentID)
	headers := map[string]string{
		"Content-Type":      "application/json",
		"Date":              end.UTC().Format(time.RFC1123),
		"X-Telemetry-Agent": a.cfg.SDKBuild + "/" + a.cfg.PlatformName,
	}
	if a.cfg.DebugViewTag != "" {
		headers["X-Debug-ID"] = a.cfg.DebugViewTag
	}
	if len(a.cfg.SourceTags) > 0 {
		headers["X-Source-Tags"] = strings.Join(a.cfg.SourceTags, ",")
	}

	if err := a.pings.RecordPing(models.PendingPing{
		DocumentID:  documentID,
		Path:        path,
		Payload:     envelope,
		Headers:     headers,
		SubmittedAt: end,
	}); err != nil {
		return false, err
	}

	if err := a.metrics.Clear(models.LifetimePing, ping); err != nil {
		a.logger.Error("pingassembler: clear ping-lifetime metrics failed", "ping", ping, "error", err)
	}
	if pingType.ClearApplicationLifetime {
		if err := a.metrics.Clear(models.LifetimeApplication, ping); err != nil {
			a.logger.Error("pingassembler: clear application-lifetime metrics failed", "ping", ping, "error", err)
		}
	}
	if err := a.events.Clear(ping); err != nil {
		a.logger.Error("pingassembler: clear events failed", "ping", ping, "error", err)
	}

	a.logger.Debug("pingassembler: assembled ping", "ping", ping, "documentId", documentID, "seq", seq)
	return true, nil
}
