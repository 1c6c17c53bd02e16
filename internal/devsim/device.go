// Package devsim is an in-memory stand-in for the device firmware's HTTP
// endpoint: two append-only streams addressed by absolute offsets, a bounded
// slot array with a version stamp, and the clear mutations. It backs fpbsimd
// and the end-to-end tests.
package devsim

import (
	"fmt"
	"sync"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/api"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
)

// Device holds simulated firmware state. All methods are safe for concurrent
// use.
type Device struct {
	mu          sync.Mutex
	protocol    model.ProtocolVersion
	firmware    string
	slots       []model.SlotRecord
	slotVersion int64
	toolLog     []string
	rawData     []byte
	memory      *model.MemoryInfo
	failClears  bool
	failMessage string
}

func NewDevice(protocol model.ProtocolVersion, firmware string) *Device {
	capacity := protocol.Capacity()
	d := &Device{
		protocol: protocol,
		firmware: firmware,
		slots:    make([]model.SlotRecord, capacity),
	}
	for i := range d.slots {
		d.slots[i].ID = i
	}
	return d
}

// AppendToolLog appends lines to the textual log stream.
func (d *Device) AppendToolLog(lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toolLog = append(d.toolLog, lines...)
}

// AppendRaw appends bytes to the raw serial stream.
func (d *Device) AppendRaw(data string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rawData = append(d.rawData, data...)
}

// InstallPatch occupies a slot and bumps the slot version.
func (d *Device) InstallPatch(id int, funcName, origAddr, targetAddr string, codeSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id < 0 || id >= len(d.slots) {
		return fmt.Errorf("devsim: slot id %d out of range", id)
	}
	d.slots[id] = model.SlotRecord{
		ID:              id,
		Occupied:        true,
		FunctionName:    funcName,
		OriginalAddress: origAddr,
		TargetAddress:   targetAddr,
		CodeSize:        codeSize,
	}
	d.slotVersion++
	return nil
}

// SetMemory publishes the patch pool state.
func (d *Device) SetMemory(info model.MemoryInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := info
	d.memory = &m
}

// FailClears makes subsequent mutations report an application-level failure.
func (d *Device) FailClears(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failClears = true
	d.failMessage = message
}

// AllowClears reverts FailClears.
func (d *Device) AllowClears() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failClears = false
	d.failMessage = ""
}

// Poll answers one cursor-based fetch. Cursors beyond the stream ends are
// clamped so a restarted device cannot make a client block forever.
func (d *Device) Poll(toolSince, rawSince int64) api.PollResponse {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp := api.PollResponse{
		ToolNext: int64(len(d.toolLog)),
		RawNext:  int64(len(d.rawData)),
	}
	if toolSince < 0 {
		toolSince = 0
	}
	if rawSince < 0 {
		rawSince = 0
	}
	if toolSince < int64(len(d.toolLog)) {
		resp.ToolLogs = append([]string(nil), d.toolLog[toolSince:]...)
	}
	if rawSince < int64(len(d.rawData)) {
		resp.RawData = string(d.rawData[rawSince:])
	}
	version := d.slotVersion
	resp.SlotUpdateID = &version
	data := d.slotData()
	resp.SlotData = &data
	return resp
}

// Snapshot answers /slot-info.
func (d *Device) Snapshot() api.SlotInfoResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	return api.SlotInfoResponse{
		SlotUpdateID: d.slotVersion,
		SlotData:     d.slotData(),
	}
}

// Info answers /device-info.
func (d *Device) Info() api.DeviceInfoResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	return api.DeviceInfoResponse{
		ProtocolVersion: int(d.protocol),
		Capacity:        len(d.slots),
		Firmware:        d.firmware,
	}
}

// Mutate applies a clear request and reports the application-level outcome.
func (d *Device) Mutate(req api.MutateRequest) api.MutateResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failClears {
		return api.MutateResponse{Success: false, Message: d.failMessage}
	}
	switch {
	case req.All:
		for i := range d.slots {
			d.slots[i] = model.SlotRecord{ID: i}
		}
		d.slotVersion++
		return api.MutateResponse{Success: true}
	case req.SlotID != nil:
		id := *req.SlotID
		if id < 0 || id >= len(d.slots) {
			return api.MutateResponse{Success: false, Message: fmt.Sprintf("slot id %d out of range", id)}
		}
		d.slots[id] = model.SlotRecord{ID: id}
		d.slotVersion++
		return api.MutateResponse{Success: true}
	default:
		return api.MutateResponse{Success: false, Message: "neither slot_id nor all given"}
	}
}

// slotData must be called with the lock held.
func (d *Device) slotData() api.SlotData {
	data := api.SlotData{Slots: make([]api.SlotEntry, 0, len(d.slots))}
	for _, rec := range d.slots {
		data.Slots = append(data.Slots, api.SlotEntry{
			ID:         rec.ID,
			Occupied:   rec.Occupied,
			Func:       rec.FunctionName,
			OrigAddr:   rec.OriginalAddress,
			TargetAddr: rec.TargetAddress,
			CodeSize:   rec.CodeSize,
		})
	}
	return data
}
