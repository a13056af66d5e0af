// Package cleaner orchestrates capacity-policy decisions against the
// conversation log and the storage driver. It owns the periodic cleanup
// schedule, the normal and emergency cleanup modes, and the save paths that
// absorb capacity failures so callers never see a storage write fail.
package cleaner

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/easychat-dev/easychat/internal/history"
	"github.com/easychat-dev/easychat/internal/policy"
	"github.com/easychat-dev/easychat/internal/storage"
	"github.com/easychat-dev/easychat/internal/telemetry"
)

// Mode is the engine's state machine state.
type Mode int32

const (
	Idle Mode = iota
	RunningNormal
	RunningEmergency
)

func (m Mode) String() string {
	switch m {
	case RunningNormal:
		return "normal"
	case RunningEmergency:
		return "emergency"
	default:
		return "idle"
	}
}

// orphanKeys is the fixed deny-list of known-stale auxiliary keys removed by
// the clean-orphans action, matched by exact name.
var orphanKeys = []string{
	storage.KeyPrefix + "temp_data",
	storage.KeyPrefix + "cache",
	storage.KeyPrefix + "old_history",
	"temp_chat_data",
}

// Engine runs cleanup passes over a log and a driver. All passes and saves
// are serialized behind one mutex, so two passes never interleave and a pass
// never interleaves with a save.
type Engine struct {
	mu      sync.Mutex
	cfg     policy.Config
	log     *history.Log
	driver  storage.Driver
	logger  *slog.Logger
	metrics *telemetry.Metrics
	cron    *cron.Cron
	mode    atomic.Int32
	saves   sync.WaitGroup
}

// New creates an engine. metrics may be nil.
func New(cfg policy.Config, log *history.Log, driver storage.Driver, logger *slog.Logger, metrics *telemetry.Metrics) *Engine {
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	return &Engine{
		cfg:     cfg,
		log:     log,
		driver:  driver,
		logger:  logger,
		metrics: metrics,
	}
}

// Mode returns the engine's current state.
func (e *Engine) Mode() Mode {
	return Mode(e.mode.Load())
}

// Start runs an immediate cleanup pass and begins the periodic schedule.
func (e *Engine) Start() {
	e.RunNormal()

	e.cron = cron.New()
	e.cron.Schedule(cron.Every(e.cfg.CleanupInterval), cron.FuncJob(e.RunNormal))
	e.cron.Start()
}

// Close stops the periodic schedule, waits for in-flight deferred saves, and
// runs one final best-effort normal pass so storage is left compact for the
// next session.
func (e *Engine) Close() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
		e.cron = nil
	}
	e.saves.Wait()
	e.RunNormal()
}

// RunNormal executes one normal cleanup pass: the policy's actions in order,
// with a synchronous save after every destructive action. If usage is still
// past the emergency fraction afterwards, the pass escalates to emergency
// mode before returning to idle.
func (e *Engine) RunNormal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runNormalLocked()
}

// RunEmergency executes one emergency pass on demand.
func (e *Engine) RunEmergency() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runEmergencyLocked()
}

func (e *Engine) runNormalLocked() {
	e.mode.Store(int32(RunningNormal))
	defer e.mode.Store(int32(Idle))

	e.metrics.CleanupPasses.WithLabelValues("normal").Inc()
	start := time.Now()
	cleaned := 0

	usage, err := e.driver.Usage()
	if err != nil {
		e.logger.Warn("usage snapshot failed", "error", err)
	}

	for _, action := range e.cfg.Plan(usage) {
		e.metrics.CleanupActions.WithLabelValues(action.String()).Inc()

		escalated := false
		switch action {
		case policy.ExpireOld:
			if n := e.log.ExpireOlderThan(e.cfg.MaxAge); n > 0 {
				cleaned += n
				e.metrics.MessagesEvicted.WithLabelValues("expired").Add(float64(n))
				escalated = e.persistLocked()
			}
		case policy.CompressLarge:
			if n := e.log.CompressOversized(e.cfg.CompressionThreshold); n > 0 {
				cleaned += n
				escalated = e.persistLocked()
			}
		case policy.TrimExcess:
			if n := e.log.TrimToMostRecent(e.cfg.MaxMessages); n > 0 {
				cleaned += n
				e.metrics.MessagesEvicted.WithLabelValues("trimmed").Add(float64(n))
				escalated = e.persistLocked()
			}
		case policy.CleanOrphans:
			cleaned += e.cleanOrphansLocked()
		case policy.Defragment:
			escalated = e.defragmentLocked()
		}

		// A save that hit the capacity ceiling already ran the emergency
		// pass; the rest of the plan is moot.
		if escalated {
			return
		}
	}

	usage, err = e.driver.Usage()
	if err != nil {
		e.logger.Warn("usage snapshot failed", "error", err)
		return
	}
	e.observeUsage(usage)

	e.logger.Debug("cleanup pass complete",
		"cleaned", cleaned,
		"duration", time.Since(start),
		"storage_pct", usage.Percent(e.cfg.CapacityBytes),
	)

	if e.cfg.IsEmergency(usage) {
		e.runEmergencyLocked()
	}
}

// runEmergencyLocked performs the aggressive last-resort cleanup. It never
// recurses: its own save failure is logged and swallowed, and control
// returns to idle regardless of outcome.
func (e *Engine) runEmergencyLocked() {
	e.mode.Store(int32(RunningEmergency))
	defer e.mode.Store(int32(Idle))

	e.metrics.CleanupPasses.WithLabelValues("emergency").Inc()
	e.logger.Warn("emergency cleanup", "limit", e.cfg.EmergencyLimit)

	if n := e.log.EmergencyTrim(e.cfg.EmergencyLimit); n > 0 {
		e.metrics.MessagesEvicted.WithLabelValues("emergency").Add(float64(n))
	}

	// Purge every app-prefixed key other than the primary record, plus the
	// orphan deny-list.
	keys, err := e.driver.Keys()
	if err == nil {
		for _, k := range keys {
			if k == storage.HistoryKey {
				continue
			}
			if strings.HasPrefix(k, storage.KeyPrefix) || isOrphan(k) {
				_ = e.driver.Remove(k)
			}
		}
	}

	if err := e.writeSnapshotLocked(); err != nil {
		e.metrics.SaveFailures.Inc()
		e.logger.Error("save failed after emergency cleanup", "error", err)
	}

	if usage, err := e.driver.Usage(); err == nil {
		e.observeUsage(usage)
	}
}

// SaveSync persists the log synchronously. A capacity failure escalates to
// emergency cleanup and retries exactly once; it is never surfaced.
func (e *Engine) SaveSync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistLocked()
}

// NoteAppend is the hot append path: it monitors usage and hands persistence
// to a deferred best-effort task so the caller never waits on a storage
// round-trip. The synchronous cleanup path remains the durability backstop.
func (e *Engine) NoteAppend() {
	e.saves.Add(1)
	go func() {
		defer e.saves.Done()

		e.mu.Lock()
		defer e.mu.Unlock()

		usage, err := e.driver.Usage()
		if err == nil {
			switch {
			case e.cfg.IsEmergency(usage):
				e.runEmergencyLocked()
				return
			case e.cfg.UnderPressure(usage):
				e.logger.Warn("storage pressure high",
					"storage_pct", usage.Percent(e.cfg.CapacityBytes))
				e.runNormalLocked()
				return
			}
		}
		e.persistLocked()
	}()
}

// Flush blocks until every in-flight deferred save has completed.
func (e *Engine) Flush() {
	e.saves.Wait()
}

// persistLocked writes the snapshot, recovering from ErrCapacityExceeded by
// escalating to emergency mode, which retries the write exactly once.
// Failures never propagate; the in-memory log stays the source of truth.
// Reports whether it escalated.
func (e *Engine) persistLocked() bool {
	err := e.writeSnapshotLocked()
	if err == nil {
		return false
	}
	if !errors.Is(err, storage.ErrCapacityExceeded) {
		e.metrics.SaveFailures.Inc()
		e.logger.Error("save failed", "error", err)
		return false
	}

	e.logger.Warn("storage full, escalating to emergency cleanup")
	e.runEmergencyLocked()
	return true
}

func (e *Engine) writeSnapshotLocked() error {
	data, err := e.log.Snapshot()
	if err != nil {
		return err
	}
	return e.driver.Write(storage.HistoryKey, data)
}

// cleanOrphansLocked removes known-stale auxiliary keys by exact name.
func (e *Engine) cleanOrphansLocked() int {
	cleaned := 0
	for _, key := range orphanKeys {
		if _, ok, err := e.driver.Read(key); err == nil && ok {
			if e.driver.Remove(key) == nil {
				cleaned++
			}
		}
	}
	return cleaned
}

// defragmentLocked rewrites the primary record from the authoritative
// in-memory log by removing and re-inserting its key, reclaiming incremental
// growth in the underlying store. Skipped when the log is empty. Reports
// whether the re-insert escalated.
func (e *Engine) defragmentLocked() bool {
	if e.log.Len() == 0 {
		return false
	}
	if err := e.driver.Remove(storage.HistoryKey); err != nil {
		e.logger.Warn("defragment remove failed", "error", err)
		return false
	}
	return e.persistLocked()
}

func (e *Engine) observeUsage(u storage.Usage) {
	e.metrics.StorageBytes.Set(float64(u.TotalBytes))
	e.metrics.StorageItems.Set(float64(u.ItemCount))
}

func isOrphan(key string) bool {
	for _, k := range orphanKeys {
		if k == key {
			return true
		}
	}
	return false
}
