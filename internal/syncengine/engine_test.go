package syncengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/api"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
)

type fakeTransport struct {
	mu            sync.Mutex
	pollFn        func(toolSince, rawSince int64) (api.PollResponse, error)
	clearFn       func(id int) (api.MutateResponse, error)
	clearAllFn    func() (api.MutateResponse, error)
	slotInfoFn    func() (api.SlotInfoResponse, error)
	pollCalls     atomic.Int64
	clearCalls    atomic.Int64
	clearAllCalls atomic.Int64
}

func (f *fakeTransport) Poll(_ context.Context, toolSince, rawSince int64) (api.PollResponse, error) {
	f.pollCalls.Add(1)
	f.mu.Lock()
	fn := f.pollFn
	f.mu.Unlock()
	if fn == nil {
		return api.PollResponse{ToolNext: toolSince, RawNext: rawSince}, nil
	}
	return fn(toolSince, rawSince)
}

func (f *fakeTransport) ClearSlot(_ context.Context, id int) (api.MutateResponse, error) {
	f.clearCalls.Add(1)
	if f.clearFn == nil {
		return api.MutateResponse{Success: true}, nil
	}
	return f.clearFn(id)
}

func (f *fakeTransport) ClearAllSlots(_ context.Context) (api.MutateResponse, error) {
	f.clearAllCalls.Add(1)
	if f.clearAllFn == nil {
		return api.MutateResponse{Success: true}, nil
	}
	return f.clearAllFn()
}

func (f *fakeTransport) SlotInfo(_ context.Context) (api.SlotInfoResponse, error) {
	if f.slotInfoFn == nil {
		return api.SlotInfoResponse{}, nil
	}
	return f.slotInfoFn()
}

func (f *fakeTransport) setPoll(fn func(toolSince, rawSince int64) (api.PollResponse, error)) {
	f.mu.Lock()
	f.pollFn = fn
	f.mu.Unlock()
}

func newTestEngine(t *testing.T, transport Transport, sinks Sinks) *Engine {
	t.Helper()
	engine, err := New(EngineConfig{
		Transport: transport,
		Capacity:  8,
		Interval:  time.Hour, // ticks never fire unless a test wants them
		Sinks:     sinks,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func versionPtr(v int64) *int64 { return &v }

func TestCycleAdvancesCursorAndEmitsLogLines(t *testing.T) {
	transport := &fakeTransport{}
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		if toolSince != 0 || rawSince != 0 {
			t.Fatalf("poll called with cursors %d/%d, want 0/0", toolSince, rawSince)
		}
		return api.PollResponse{ToolNext: 1, ToolLogs: []string{"hello"}}, nil
	})
	var lines []string
	engine := newTestEngine(t, transport, Sinks{
		ToolLog: func(line string) { lines = append(lines, line) },
	})

	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := engine.CursorSnapshot(); got.ToolLog != 1 || got.RawData != 0 {
		t.Fatalf("cursors = %+v, want tool=1 raw=0", got)
	}
	if len(lines) != 1 || lines[0] != "hello" {
		t.Fatalf("emitted lines = %q, want exactly [hello]", lines)
	}
}

func TestCycleTransportFailureLeavesEverythingUntouched(t *testing.T) {
	transport := &fakeTransport{}
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		return api.PollResponse{ToolNext: 4, RawNext: 2}, nil
	})
	engine := newTestEngine(t, transport, Sinks{})
	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
	recordsBefore, versionBefore := engine.Snapshot()

	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		return api.PollResponse{}, errors.New("connection refused")
	})
	if err := engine.CycleOnce(context.Background()); err == nil {
		t.Fatalf("expected cycle error")
	}
	if got := engine.CursorSnapshot(); got.ToolLog != 4 || got.RawData != 2 {
		t.Fatalf("cursors moved on failed cycle: %+v", got)
	}
	recordsAfter, versionAfter := engine.Snapshot()
	if versionAfter != versionBefore || len(recordsAfter) != len(recordsBefore) {
		t.Fatalf("slot state changed on failed cycle")
	}
}

func TestCursorsNeverRegressUnderReorderedCompletions(t *testing.T) {
	transport := &fakeTransport{}
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		return api.PollResponse{ToolNext: 5, RawNext: 3}, nil
	})
	var lines []string
	engine := newTestEngine(t, transport, Sinks{
		ToolLog: func(line string) { lines = append(lines, line) },
	})
	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	// A delayed response carrying an older view completes second.
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		return api.PollResponse{ToolNext: 2, RawNext: 1, ToolLogs: []string{"dup"}}, nil
	})
	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := engine.CursorSnapshot(); got.ToolLog != 5 || got.RawData != 3 {
		t.Fatalf("cursors regressed: %+v", got)
	}
	if len(lines) != 0 {
		t.Fatalf("stale lines re-emitted: %q", lines)
	}
}

func TestCycleNormalizesBareNewlinesInRawData(t *testing.T) {
	transport := &fakeTransport{}
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		return api.PollResponse{RawNext: 10, RawData: "a\nb\r\nc\n"}, nil
	})
	var raw string
	engine := newTestEngine(t, transport, Sinks{
		RawData: func(chunk string) { raw += chunk },
	})
	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if raw != "a\r\nb\r\nc\r\n" {
		t.Fatalf("raw = %q, want CRLF normalized", raw)
	}
}

func TestCycleAppliesVersionGatedSlotMerge(t *testing.T) {
	transport := &fakeTransport{}
	payload := api.PollResponse{
		SlotUpdateID: versionPtr(2),
		SlotData: &api.SlotData{Slots: []api.SlotEntry{
			{ID: 7, Occupied: true, Func: "high", OrigAddr: "0x08000000", TargetAddr: "0x20000000", CodeSize: 16},
		}},
	}
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		return payload, nil
	})
	notified := 0
	engine := newTestEngine(t, transport, Sinks{
		SlotsChanged: func([]model.SlotRecord, int64) { notified++ },
	})

	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	records, version := engine.Snapshot()
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}
	if !records[7].Occupied || records[7].FunctionName != "high" {
		t.Fatalf("slot 7 = %+v", records[7])
	}
	for i := 0; i < 7; i++ {
		if records[i].Occupied {
			t.Fatalf("slot %d perturbed by sparse update", i)
		}
	}
	if notified != 1 {
		t.Fatalf("notified = %d, want 1", notified)
	}

	// A duplicate of the same snapshot (e.g. retried request) is silent.
	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if notified != 1 {
		t.Fatalf("duplicate snapshot re-notified: %d", notified)
	}
}

func TestCycleUpdatesMemoryInfo(t *testing.T) {
	transport := &fakeTransport{}
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		return api.PollResponse{
			SlotData: &api.SlotData{Memory: &api.MemoryBlock{Size: 100, Used: 50}},
		}, nil
	})
	var got *model.MemoryInfo
	engine := newTestEngine(t, transport, Sinks{
		MemoryChanged: func(info model.MemoryInfo) { got = &info },
	})
	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got == nil {
		t.Fatalf("memory sink not notified")
	}
	if got.PercentUsed() != 50 {
		t.Fatalf("percent = %d, want 50", got.PercentUsed())
	}
	if memory, ok := engine.Memory(); !ok || memory.Used != 50 {
		t.Fatalf("engine memory = %+v ok=%v", memory, ok)
	}
}

func TestStartTwiceResetsCursorsAndReplacesSession(t *testing.T) {
	transport := &fakeTransport{}
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		return api.PollResponse{ToolNext: 9, RawNext: 9}, nil
	})
	engine := newTestEngine(t, transport, Sinks{})

	engine.Start()
	if err := engine.CycleOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	firstSession := engine.SessionID()

	engine.Start()
	defer engine.Stop()
	if !engine.Running() {
		t.Fatalf("engine not running after second Start")
	}
	if engine.SessionID() == firstSession {
		t.Fatalf("session id not replaced")
	}
	if got := engine.CursorSnapshot(); got.ToolLog != 0 || got.RawData != 0 {
		t.Fatalf("cursors = %+v, want 0/0 after restart", got)
	}
	if _, version := engine.Snapshot(); version != 0 {
		t.Fatalf("table version = %d, want 0 after restart", version)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	engine := newTestEngine(t, transport, Sinks{})

	engine.Stop() // never started
	if engine.Running() {
		t.Fatalf("running after stop of idle engine")
	}

	engine.Start()
	engine.Stop()
	engine.Stop()
	if engine.Running() {
		t.Fatalf("running after double stop")
	}
	if got := engine.CursorSnapshot(); got.ToolLog != 0 || got.RawData != 0 {
		t.Fatalf("stop changed cursors: %+v", got)
	}
}

func TestTickerDrivesCyclesAndStopEndsThem(t *testing.T) {
	transport := &fakeTransport{}
	engine, err := New(EngineConfig{
		Transport: transport,
		Capacity:  6,
		Interval:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	engine.Start()
	deadline := time.Now().Add(2 * time.Second)
	for transport.pollCalls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ticker never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	engine.Stop()
	settled := transport.pollCalls.Load()
	time.Sleep(50 * time.Millisecond)
	if transport.pollCalls.Load() > settled+1 {
		t.Fatalf("ticks continued after Stop: %d -> %d", settled, transport.pollCalls.Load())
	}
}

func TestInFlightCycleFromSupersededSessionIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	transport := &fakeTransport{}
	transport.setPoll(func(toolSince, rawSince int64) (api.PollResponse, error) {
		<-release
		return api.PollResponse{ToolNext: 42, RawNext: 42}, nil
	})
	engine := newTestEngine(t, transport, Sinks{})
	engine.Start()

	done := make(chan struct{})
	go func() {
		_ = engine.CycleOnce(context.Background())
		close(done)
	}()

	// Wait for the cycle to be in flight, then supersede its session.
	deadline := time.Now().Add(2 * time.Second)
	for transport.pollCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("cycle never issued its request")
		}
		time.Sleep(time.Millisecond)
	}
	engine.Start()
	defer engine.Stop()

	close(release)
	<-done
	if got := engine.CursorSnapshot(); got.ToolLog != 0 || got.RawData != 0 {
		t.Fatalf("superseded cycle applied: %+v", got)
	}
}

func TestBootstrapLoadsSnapshotAndMarksConnected(t *testing.T) {
	transport := &fakeTransport{
		slotInfoFn: func() (api.SlotInfoResponse, error) {
			return api.SlotInfoResponse{
				SlotUpdateID: 1,
				SlotData: api.SlotData{
					Slots:  []api.SlotEntry{{ID: 3, Occupied: true, Func: "boot"}},
					Memory: &api.MemoryBlock{Size: 200, Used: 20},
				},
			}, nil
		},
	}
	engine := newTestEngine(t, transport, Sinks{})
	if engine.Connected() {
		t.Fatalf("connected before bootstrap")
	}
	if err := engine.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !engine.Connected() {
		t.Fatalf("not connected after bootstrap")
	}
	records, version := engine.Snapshot()
	if version != 1 || !records[3].Occupied {
		t.Fatalf("snapshot not merged: version=%d slot3=%+v", version, records[3])
	}
}
