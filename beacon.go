// Package beacon is the orchestrator facade: it owns init/shutdown, the
// applicationId and upload-enabled state, and composes the dispatcher,
// metrics/events/pings databases, ping assembler, upload manager and error
// manager into one cohesive surface. Grounded on the teacher's engine.go
// facade (a single struct composing independently-testable subsystems
// behind New/Start/Stop/Snapshot) and config.go's Config/Defaults idiom.
package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/shimmerdata/beacon/internal/coreinfo"
	"github.com/shimmerdata/beacon/internal/dispatcher"
	"github.com/shimmerdata/beacon/internal/errormanager"
	"github.com/shimmerdata/beacon/internal/eventsdb"
	"github.com/shimmerdata/beacon/internal/metricsdb"
	"github.com/shimmerdata/beacon/internal/metricskernel"
	"github.com/shimmerdata/beacon/internal/pingassembler"
	"github.com/shimmerdata/beacon/internal/pingsdb"
	"github.com/shimmerdata/beacon/internal/selfmetrics"
	"github.com/shimmerdata/beacon/internal/selftrace"
	"github.com/shimmerdata/beacon/internal/upload"
	"github.com/shimmerdata/beacon/models"
	"github.com/shimmerdata/beacon/platform"
)

const (
	sdkBuild              = "beacon-go/1"
	defaultMaxPingsPerInt = 40
	defaultUploadInterval = 60 * time.Second
)

var (
	debugViewTagShape = regexp.MustCompile(`^[a-zA-Z0-9-]{1,20}$`)
	sourceTagShape    = regexp.MustCompile(`^[a-zA-Z0-9-]{1,20}$`)
)

// Beacon is the SDK entry point. Construct with New, call Initialize once,
// then build metric type instances (metricskernel.NewCounter and friends)
// bound to Recorder()/ErrorSink()/EventRecorder(), and call SubmitPing to
// submit a ping. Shutdown drains the dispatcher and upload manager.
type Beacon struct {
	pf     platform.Platform
	logger *slog.Logger

	mu            sync.Mutex
	initialized   bool
	shutdownDone  bool
	applicationID string
	uploadEnabled bool

	pendingLogPings     *bool
	pendingDebugViewTag *string
	pendingSourceTags   []string
	pendingSourceTagSet bool

	cfg       Config
	pingTypes map[string]models.PingType

	dispatcher *dispatcher.Dispatcher
	metrics    *metricsdb.DB
	events     *eventsdb.DB
	pings      *pingsdb.DB
	core       *coreinfo.Store
	assembler  *pingassembler.Assembler
	uploadMgr  *upload.Manager
	errors     *errormanager.Manager
	recorder   metricskernel.Recorder
	eventRec   metricskernel.EventRecorder

	selfMetrics *selfmetrics.Collector
	tracer      *selftrace.Tracer
}

// New builds an uninitialized Beacon bound to pf. Call Initialize before
// recording or submitting anything.
func New(pf platform.Platform, logger *slog.Logger) *Beacon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Beacon{pf: pf, logger: logger}
}

// SetLogPings buffers the logPings debug option; see SetDebugViewTag for
// the shared pre-init-only semantics.
func (b *Beacon) SetLogPings(flag bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		b.logger.Warn("beacon: setLogPings called after initialize, ignored")
		return
	}
	b.pendingLogPings = &flag
}

// SetDebugViewTag buffers the X-Debug-ID value applied at Initialize. A tag
// that doesn't match ^[a-zA-Z0-9-]{1,20}$ is ignored silently, matching the
// component spec's debug-tag boundary behavior. Pre-init only: a call after
// Initialize is logged and otherwise ignored, matching the "buffered
// pre-init; applied at init" contract for every debug option.
func (b *Beacon) SetDebugViewTag(tag string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		b.logger.Warn("beacon: setDebugViewTag called after initialize, ignored")
		return
	}
	if !debugViewTagShape.MatchString(tag) {
		b.logger.Warn("beacon: debugViewTag does not match required shape, ignored", "tag", tag)
		return
	}
	b.pendingDebugViewTag = &tag
}

// SetSourceTags buffers up to 5 X-Source-Tags values, each required to
// match ^[a-zA-Z0-9-]{1,20}$; the whole call is ignored silently if either
// bound is violated. Pre-init only.
func (b *Beacon) SetSourceTags(tags []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		b.logger.Warn("beacon: setSourceTags called after initialize, ignored")
		return
	}
	if len(tags) == 0 || len(tags) > 5 {
		b.logger.Warn("beacon: sourceTags count out of bounds, ignored", "count", len(tags))
		return
	}
	for _, t := range tags {
		if !sourceTagShape.MatchString(t) {
			b.logger.Warn("beacon: sourceTag does not match required shape, ignored", "tag", t)
			return
		}
	}
	b.pendingSourceTags = append([]string(nil), tags...)
	b.pendingSourceTagSet = true
}

// sanitizeApplicationID lowercases id, replaces every run of characters
// outside [a-z0-9] with a single hyphen, trims leading/trailing hyphens,
// and truncates to 100 characters.
func sanitizeApplicationID(id string) string {
	lower := strings.ToLower(id)
	var b strings.Builder
	lastHyphen := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen && b.Len() > 0 {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > 100 {
		out = strings.TrimRight(out[:100], "-")
	}
	return out
}

// Initialize performs one-time setup: applicationId sanitization, debug
// option application, subsystem construction, the upload-enabled
// reconciliation described in the component spec, and starting the upload
// manager. Idempotent after the first successful call.
func (b *Beacon) Initialize(ctx context.Context, applicationID string, uploadEnabled bool, cfg *Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}

	c := Defaults()
	if cfg != nil {
		c = *cfg
	}
	if b.pendingLogPings != nil {
		c.LogPings = *b.pendingLogPings
	}
	if b.pendingDebugViewTag != nil {
		c.DebugViewTag = *b.pendingDebugViewTag
	}
	if b.pendingSourceTagSet {
		c.SourceTags = b.pendingSourceTags
	}
	if c.SchemaVersion == "" {
		c.SchemaVersion = "1"
	}

	b.applicationID = sanitizeApplicationID(applicationID)
	b.cfg = c
	b.pingTypes = builtinPingTypes(c.PingTypes)

	b.dispatcher = dispatcher.New(dispatcher.Async, dispatcher.WithLogger(b.logger))
	b.dispatcher.FlushInit()

	b.metrics = metricsdb.New(b.pf.Storage, b.logger)
	b.core = coreinfo.New(b.pf.Storage)
	b.pings = pingsdb.New(b.pf.Storage)
	b.events = eventsdb.New(b.pf.Storage, c.MaxEvents, b.submitEagerly, b.logger)

	b.assembler = pingassembler.New(pingassembler.Config{
		ApplicationID:  b.applicationID,
		SchemaVersion:  c.SchemaVersion,
		SDKBuild:       sdkBuild,
		PlatformName:   b.pf.Info.OS(),
		ClientInfo:     b.buildClientInfo,
		PingTypeLookup: b.lookupPingType,
		DebugViewTag:   c.DebugViewTag,
		SourceTags:     c.SourceTags,
		Plugins:        c.Plugins,
	}, b.pf.Storage, b.metrics, b.events, b.pings, b.logger)

	stored := b.core.Load()
	if err := b.reconcileUploadEnabled(ctx, stored, uploadEnabled, c); err != nil {
		return err
	}

	if b.uploadEnabled {
		if err := b.metrics.Clear(models.LifetimeApplication, ""); err != nil {
			b.logger.Error("beacon: clear application-lifetime metrics failed", "error", err)
		}
	}
	for name := range b.pingTypes {
		b.events.InitPing(ctx, name)
	}

	gated := &gatedRecorder{inner: b.metrics, dispatcher: b.dispatcher, enabled: b.isUploadEnabled}
	b.recorder = gated
	b.eventRec = &gatedEventRecorder{inner: b.events, dispatcher: b.dispatcher, enabled: b.isUploadEnabled}
	b.errors = errormanager.New(gated, b.logger)

	uploader := b.pf.Uploader
	if uploader == nil {
		uploader = platform.NewHTTPUploader()
	}
	uploader = &endpointUploader{inner: uploader, base: strings.TrimRight(c.ServerEndpoint, "/")}
	b.selfMetrics = selfmetrics.New()
	b.tracer = selftrace.New(b.applicationID)
	uploader = b.selfMetrics.WrapUploader(uploader)

	maxPerInterval := c.MaxPingsPerInterval
	if maxPerInterval <= 0 {
		maxPerInterval = defaultMaxPingsPerInt
	}
	interval := c.UploadInterval
	if interval <= 0 {
		interval = defaultUploadInterval
	}
	limiter := upload.NewRateLimiter(maxPerInterval, interval, nil)
	b.uploadMgr = upload.New(b.pings, uploader, limiter, b.logger)
	b.uploadMgr.Start(ctx)

	b.initialized = true
	return nil
}

// MetricsHandler exposes this Beacon's own operational counters (distinct
// from the application metrics it uploads on the embedder's behalf) in
// Prometheus exposition format. Returns nil before Initialize.
func (b *Beacon) MetricsHandler() http.Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selfMetrics == nil {
		return nil
	}
	return b.selfMetrics.Handler()
}

func (b *Beacon) lookupPingType(name string) (models.PingType, bool) {
	pt, ok := b.pingTypes[name]
	return pt, ok
}

func (b *Beacon) buildClientInfo() models.ClientInfo {
	st := b.core.Load()
	return models.ClientInfo{
		ClientID:     st.ClientID,
		FirstRunDate: st.FirstRunDate,
		OS:           b.pf.Info.OS(),
		OSVersion:    b.pf.Info.OSVersion(),
		Architecture: b.pf.Info.Architecture(),
		AppBuild:     st.AppBuild,
		AppDisplay:   st.AppDisplayVersion,
		AppChannel:   st.AppChannel,
	}
}

func (b *Beacon) submitEagerly(ctx context.Context, ping string) {
	if _, err := b.assembler.Assemble(ctx, ping, "max_events"); err != nil {
		b.logger.Error("beacon: eager events submission failed", "ping", ping, "error", err)
	}
}

func (b *Beacon) isUploadEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploadEnabled
}

// reconcileUploadEnabled implements the three cases named in the component
// spec's orchestrator section: disabled->enabled re-derives identity,
// enabled->disabled submits a deletion-request and clears state, and a
// disabled first run clears silently.
func (b *Beacon) reconcileUploadEnabled(ctx context.Context, stored coreinfo.State, wantEnabled bool, c Config) error {
	today := time.Now().UTC().Format("2006-01-02")

	if stored.IsFirstRun() {
		st := coreinfo.State{
			FirstRunDate:      today,
			UploadEnabled:     wantEnabled,
			AppBuild:          c.AppBuild,
			AppDisplayVersion: c.AppDisplayVersion,
			AppChannel:        c.Channel,
		}
		if wantEnabled {
			st.ClientID = uuid.NewString()
		} else {
			st.ClientID = coreinfo.KnownClientID
		}
		b.uploadEnabled = wantEnabled
		return b.core.Save(st)
	}

	st := stored
	st.AppBuild = c.AppBuild
	st.AppDisplayVersion = c.AppDisplayVersion
	st.AppChannel = c.Channel

	switch {
	case !stored.UploadEnabled && wantEnabled:
		st.ClientID = uuid.NewString()
		st.FirstRunDate = today
		st.UploadEnabled = true
	case stored.UploadEnabled && !wantEnabled:
		if _, err := b.assembler.Assemble(ctx, deletionRequestPing, ""); err != nil {
			b.logger.Error("beacon: deletion-request submission failed", "error", err)
		}
		if err := b.metrics.ClearAll(); err != nil {
			b.logger.Error("beacon: clear metrics on upload-disable failed", "error", err)
		}
		if err := b.events.ClearAll(); err != nil {
			b.logger.Error("beacon: clear events on upload-disable failed", "error", err)
		}
		st.ClientID = coreinfo.KnownClientID
		st.UploadEnabled = false
	default:
		st.UploadEnabled = wantEnabled
	}

	b.uploadEnabled = st.UploadEnabled
	return b.core.Save(st)
}

// SetUploadEnabled toggles the upload-enabled state at runtime, performing
// the same reconciliation Initialize performs for a state change. A no-op
// before Initialize.
func (b *Beacon) SetUploadEnabled(ctx context.Context, flag bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	if flag == b.uploadEnabled {
		return nil
	}
	stored := b.core.Load()
	return b.reconcileUploadEnabled(ctx, stored, flag, b.cfg)
}

// SubmitPing dispatches the named ping's assembly as one serialized unit so
// no concurrent record can land in the snapshot after the copy begins.
func (b *Beacon) SubmitPing(ctx context.Context, ping, reason string) error {
	b.mu.Lock()
	d := b.dispatcher
	a := b.assembler
	tracer := b.tracer
	metrics := b.selfMetrics
	b.mu.Unlock()
	if d == nil || a == nil {
		return fmt.Errorf("beacon: not initialized")
	}
	if metrics != nil {
		metrics.RecordSubmission(ping)
	}
	errCh := d.Dispatch(func(ctx context.Context) error {
		var span oteltrace.Span
		if tracer != nil {
			ctx, span = tracer.StartPingAssembly(ctx, ping, reason)
		}
		persisted, err := a.Assemble(ctx, ping, reason)
		if span != nil {
			selftrace.RecordResult(span, persisted, err)
			span.End()
		}
		return err
	})
	return <-errCh
}

// Recorder exposes the dispatcher-serialized, upload-enabled-gated
// metricskernel.Recorder application metric type instances should bind to.
func (b *Beacon) Recorder() metricskernel.Recorder { return b.recorder }

// ErrorSink exposes the error manager every metric type instance should
// bind to.
func (b *Beacon) ErrorSink() metricskernel.ErrorSink { return b.errors }

// EventRecorder exposes the dispatcher-serialized, upload-enabled-gated
// metricskernel.EventRecorder Event metric type instances should bind to.
func (b *Beacon) EventRecorder() metricskernel.EventRecorder { return b.eventRec }

// Shutdown drains the dispatcher and blocks until any in-flight upload
// settles, then stops the upload worker. Irreversible; safe to call more
// than once.
func (b *Beacon) Shutdown() {
	b.mu.Lock()
	if b.shutdownDone || !b.initialized {
		b.mu.Unlock()
		return
	}
	b.shutdownDone = true
	d := b.dispatcher
	u := b.uploadMgr
	b.mu.Unlock()

	d.Shutdown()
	u.BlockOnOngoingUploads()
	u.Stop()
}

// endpointUploader joins Config.ServerEndpoint with the submission path the
// ping assembler stamped onto each PendingPing, since pingassembler has no
// notion of the configured server and stores only the path component.
type endpointUploader struct {
	inner platform.Uploader
	base  string
}

func (e *endpointUploader) Post(ctx context.Context, path string, body []byte, headers map[string]string) (platform.UploadResult, error) {
	return e.inner.Post(ctx, e.base+path, body, headers)
}

// gatedRecorder enforces the invariant that no metric records while upload
// is disabled (client_id/first_run_date are exempt because they never flow
// through this path; see internal/coreinfo), and serializes every
// recording call through the dispatcher per the component spec's
// concurrency model.
type gatedRecorder struct {
	inner      metricskernel.Recorder
	dispatcher *dispatcher.Dispatcher
	enabled    func() bool
}

func (g *gatedRecorder) Transform(ctx context.Context, m metricskernel.Metadata, fn metricskernel.TransformFunc) error {
	if !g.enabled() {
		return nil
	}
	return <-g.dispatcher.Dispatch(func(ctx context.Context) error {
		return g.inner.Transform(ctx, m, fn)
	})
}

func (g *gatedRecorder) TransformLabeled(ctx context.Context, m metricskernel.Metadata, label string, fn metricskernel.TransformFunc) error {
	if !g.enabled() {
		return nil
	}
	return <-g.dispatcher.Dispatch(func(ctx context.Context) error {
		return g.inner.TransformLabeled(ctx, m, label, fn)
	})
}

// gatedEventRecorder is gatedRecorder's counterpart for the events
// database's append-only record path.
type gatedEventRecorder struct {
	inner      *eventsdb.DB
	dispatcher *dispatcher.Dispatcher
	enabled    func() bool
}

func (g *gatedEventRecorder) RecordEvent(ctx context.Context, m metricskernel.Metadata, extra map[string]string) error {
	if !g.enabled() {
		return nil
	}
	return <-g.dispatcher.Dispatch(func(ctx context.Context) error {
		return g.inner.RecordEvent(ctx, m, extra)
	})
}
