// Package syncengine keeps a local mirror of device state current by
// polling the device's HTTP endpoint. One Engine instance owns the slot
// table, the stream cursors, and the session timer; the mutation coordinator
// never writes that state directly, it only triggers extra cycles.
package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/api"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/metrics"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/slot"
)

const defaultPollInterval = 1 * time.Second

// Cursors are the next-expected offsets into the device's two append-only
// streams. Within one session they only move forward; a session restart is
// the only reset.
type Cursors struct {
	ToolLog int64
	RawData int64
}

// Transport is the slice of the device client the engine needs.
type Transport interface {
	Poll(ctx context.Context, toolSince, rawSince int64) (api.PollResponse, error)
	ClearSlot(ctx context.Context, id int) (api.MutateResponse, error)
	ClearAllSlots(ctx context.Context) (api.MutateResponse, error)
	SlotInfo(ctx context.Context) (api.SlotInfoResponse, error)
}

// Sinks receive what a cycle produced, after the engine's own state has been
// updated. Nil funcs are skipped. Sinks must not call back into the engine.
type Sinks struct {
	ToolLog       func(line string)
	RawData       func(chunk string)
	SlotsChanged  func(records []model.SlotRecord, version int64)
	MemoryChanged func(info model.MemoryInfo)
}

// EngineConfig holds the options for New.
type EngineConfig struct {
	Transport Transport
	Capacity  int
	Interval  time.Duration
	Sinks     Sinks
	Logger    *zap.Logger
}

type Engine struct {
	transport Transport
	sinks     Sinks
	log       *zap.Logger
	interval  time.Duration

	mu         sync.Mutex
	table      *slot.Table
	cursors    Cursors
	memory     model.MemoryInfo
	hasMemory  bool
	connected  bool
	generation uint64
	sessionID  string
	cancel     context.CancelFunc
}

func New(cfg EngineConfig) (*Engine, error) {
	if cfg.Transport == nil {
		return nil, errors.New("syncengine: transport is required")
	}
	table, err := slot.NewTable(cfg.Capacity)
	if err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		transport: cfg.Transport,
		sinks:     cfg.Sinks,
		log:       logger,
		interval:  interval,
		table:     table,
	}, nil
}

// Start begins a new polling session. Any previous session is cancelled
// first, the cursors and table are reset, and a fresh repeating timer is
// armed: after Start returns exactly one timer is active. In-flight cycles
// from the superseded session are detected by generation and discarded.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++
	e.cursors = Cursors{}
	e.table.Reset()
	e.hasMemory = false
	e.sessionID = uuid.NewString()
	sessionID := e.sessionID
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.log.Info("poll session started",
		zap.String("session_id", sessionID),
		zap.Duration("interval", e.interval))
	go e.run(ctx)
}

// Stop cancels the active timer if present. Stopping an already stopped
// engine is a no-op. An in-flight cycle is not cancelled; its completion is
// discarded by the generation check.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.cancel = nil
	e.generation++
	sessionID := e.sessionID
	e.mu.Unlock()

	e.log.Info("poll session stopped", zap.String("session_id", sessionID))
}

// Running reports whether a session timer is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Connected reports whether device discovery has completed for this engine.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// SessionID identifies the current polling session in logs.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// CursorSnapshot returns the current stream cursors.
func (e *Engine) CursorSnapshot() Cursors {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursors
}

// Snapshot returns a copy of the slot table and its version stamp.
func (e *Engine) Snapshot() ([]model.SlotRecord, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Records(), e.table.Version()
}

// Capacity returns the slot table capacity.
func (e *Engine) Capacity() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Capacity()
}

// Memory returns the last seen memory info, if any arrived yet.
func (e *Engine) Memory() (model.MemoryInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memory, e.hasMemory
}

// Bootstrap loads the authoritative full snapshot via /slot-info and marks
// the device connected. The snapshot goes through the same version gate as
// any poll payload.
func (e *Engine) Bootstrap(ctx context.Context) error {
	info, err := e.transport.SlotInfo(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	applied := e.table.Merge(info.SlotUpdateID, recordsFromEntries(info.SlotData.Slots))
	var records []model.SlotRecord
	var version int64
	if applied {
		records = e.table.Records()
		version = e.table.Version()
	}
	memChanged := false
	var mem model.MemoryInfo
	if info.SlotData.Memory != nil {
		e.memory = memoryFromBlock(*info.SlotData.Memory)
		e.hasMemory = true
		mem = e.memory
		memChanged = true
	}
	e.connected = true
	e.mu.Unlock()

	if applied && e.sinks.SlotsChanged != nil {
		e.sinks.SlotsChanged(records, version)
	}
	if memChanged && e.sinks.MemoryChanged != nil {
		e.sinks.MemoryChanged(mem)
	}
	return nil
}

// CycleOnce performs one fetch-and-merge cycle. A transport failure abandons
// the cycle: no cursor moves, no slot changes, and the error is returned for
// callers that care (ticks do not).
func (e *Engine) CycleOnce(ctx context.Context) error {
	e.mu.Lock()
	gen := e.generation
	toolSince := e.cursors.ToolLog
	rawSince := e.cursors.RawData
	e.mu.Unlock()

	resp, err := e.transport.Poll(ctx, toolSince, rawSince)
	if err != nil {
		metrics.PollCyclesTotal.WithLabelValues(metrics.OutcomeTransportError).Inc()
		e.log.Debug("poll cycle abandoned", zap.Error(err))
		return err
	}
	metrics.PollCyclesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	e.apply(gen, resp)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.CycleOnce(ctx)
		}
	}
}

// apply folds one successful poll response into the engine state. Completions
// from a superseded session are dropped whole. Cursor advancement is forward
// only, so a delayed response that lost the race against a newer one cannot
// rewind the streams or re-emit its lines; the slot section is guarded by the
// table's version gate.
func (e *Engine) apply(gen uint64, resp api.PollResponse) {
	var emitLogs []string
	var emitRaw string
	var slotsChanged bool
	var records []model.SlotRecord
	var version int64
	var memChanged bool
	var mem model.MemoryInfo

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		e.log.Debug("dropping cycle result from superseded session")
		return
	}
	if resp.ToolNext > e.cursors.ToolLog {
		e.cursors.ToolLog = resp.ToolNext
		emitLogs = resp.ToolLogs
	}
	if resp.RawNext > e.cursors.RawData {
		e.cursors.RawData = resp.RawNext
		if resp.RawData != "" {
			emitRaw = NormalizeRaw(resp.RawData)
		}
	}
	if resp.SlotData != nil && resp.SlotUpdateID != nil {
		if e.table.Merge(*resp.SlotUpdateID, recordsFromEntries(resp.SlotData.Slots)) {
			metrics.SlotMergesTotal.WithLabelValues(metrics.MergeApplied).Inc()
			slotsChanged = true
			records = e.table.Records()
			version = e.table.Version()
		} else {
			metrics.SlotMergesTotal.WithLabelValues(metrics.MergeStale).Inc()
		}
	}
	if resp.SlotData != nil && resp.SlotData.Memory != nil {
		e.memory = memoryFromBlock(*resp.SlotData.Memory)
		e.hasMemory = true
		mem = e.memory
		memChanged = true
	}
	e.mu.Unlock()

	for _, line := range emitLogs {
		if e.sinks.ToolLog != nil {
			e.sinks.ToolLog(line)
		}
	}
	if emitRaw != "" && e.sinks.RawData != nil {
		e.sinks.RawData(emitRaw)
	}
	if slotsChanged && e.sinks.SlotsChanged != nil {
		e.sinks.SlotsChanged(records, version)
	}
	if memChanged && e.sinks.MemoryChanged != nil {
		e.sinks.MemoryChanged(mem)
	}
}
