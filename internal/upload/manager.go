package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shimmerdata/beacon/internal/pingsdb"
	"github.com/shimmerdata/beacon/models"
	"github.com/shimmerdata/beacon/platform"
)

// Manager drives the pending-pings queue to a platform Uploader: a single
// worker goroutine woken by pingsdb's observer notification, enforcing at
// most one HTTP request in flight and a global sliding-window rate limit.
// Grounded on the teacher's channel-driven worker-loop idiom
// (internal/pipeline/pipeline.go), collapsed from N parallel stage workers
// into the spec's single-upload-ceiling loop.
type Manager struct {
	pings    *pingsdb.DB
	uploader platform.Uploader
	limiter  *RateLimiter
	logger   *slog.Logger

	// BackoffBase is the exponential-backoff base duration (15s per the
	// spec's default policy); overridable before Start for tests.
	BackoffBase time.Duration

	wake   chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu        sync.Mutex
	attempts  map[string]int // documentID -> total attempts
	recovFail map[string]int // documentID -> recoverable-failure count
	waits     map[string]int // documentID -> waits taken for the current failure
	inFlight  bool
	settled   *sync.Cond
}

// New builds a Manager. Call Start to begin processing.
func New(pings *pingsdb.DB, uploader platform.Uploader, limiter *RateLimiter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		pings:       pings,
		uploader:    uploader,
		limiter:     limiter,
		logger:      logger,
		BackoffBase: backoffBase,
		wake:        make(chan struct{}, 1),
		attempts:    make(map[string]int),
		recovFail:   make(map[string]int),
		waits:       make(map[string]int),
	}
	m.settled = sync.NewCond(&m.mu)
	pings.RegisterObserver(m)
	return m
}

// OnPingEnqueued implements pingsdb.Observer, waking the worker loop.
func (m *Manager) OnPingEnqueued(documentID string) {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutine.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop cancels the worker loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// BlockOnOngoingUploads resolves once no upload is currently in flight.
func (m *Manager) BlockOnOngoingUploads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.inFlight {
		m.settled.Wait()
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		pending := m.pings.ScanPendingPings()
		if len(pending) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}

		p := pending[0]
		if ok, wait := m.limiter.Allow(); !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		m.processOne(ctx, p)
	}
}

func (m *Manager) processOne(ctx context.Context, p models.PendingPing) {
	m.mu.Lock()
	m.attempts[p.DocumentID]++
	decision := Policy(m.attempts[p.DocumentID], m.recovFail[p.DocumentID], m.waits[p.DocumentID], m.BackoffBase)
	m.mu.Unlock()

	switch decision.Action {
	case ActionDone:
		m.giveUp(p.DocumentID)
		return
	case ActionWait:
		m.mu.Lock()
		m.waits[p.DocumentID]++
		m.mu.Unlock()
		select {
		case <-ctx.Done():
		case <-time.After(decision.Wait):
		}
		return
	}

	m.mu.Lock()
	m.inFlight = true
	m.mu.Unlock()

	body, err := marshalEnvelope(p.Payload)
	var result platform.UploadResult
	if err != nil {
		result = platform.UploadResult{Status: platform.RecoverableFailure}
	} else {
		result, err = m.uploader.Post(ctx, p.Path, body, p.Headers)
		if err != nil && result.Status == platform.Success {
			result.Status = platform.RecoverableFailure
		}
	}

	m.mu.Lock()
	m.inFlight = false
	m.settled.Broadcast()
	m.mu.Unlock()

	m.interpret(p, result)
}

func (m *Manager) interpret(p models.PendingPing, result platform.UploadResult) {
	switch result.Status {
	case platform.Success:
		m.finish(p.DocumentID)
		return
	case platform.HTTPStatus:
		if result.Code >= 400 && result.Code < 500 {
			m.giveUp(p.DocumentID)
			return
		}
		m.recoverableFailure(p.DocumentID)
	default:
		m.recoverableFailure(p.DocumentID)
	}
}

func (m *Manager) recoverableFailure(documentID string) {
	m.mu.Lock()
	m.recovFail[documentID]++
	exceeded := m.recovFail[documentID] > maxRecoverableFailures
	n := m.recovFail[documentID]
	m.mu.Unlock()
	if exceeded {
		m.giveUp(documentID)
		return
	}
	m.logger.Warn("upload: recoverable failure", "documentId", documentID, "count", n)
}

func (m *Manager) giveUp(documentID string) {
	if err := m.pings.DeletePing(documentID); err != nil {
		m.logger.Error("upload: delete failed ping failed", "documentId", documentID, "error", err)
	}
	m.logger.Warn("upload: giving up on ping", "documentId", documentID)
	m.forget(documentID)
}

func (m *Manager) finish(documentID string) {
	if err := m.pings.DeletePing(documentID); err != nil {
		m.logger.Error("upload: delete uploaded ping failed", "documentId", documentID, "error", err)
	}
	m.forget(documentID)
}

func (m *Manager) forget(documentID string) {
	m.mu.Lock()
	delete(m.attempts, documentID)
	delete(m.recovFail, documentID)
	delete(m.waits, documentID)
	m.mu.Unlock()
}
