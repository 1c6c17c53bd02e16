package model

import "math"

// ProtocolVersion selects the device wire protocol generation. It is
// discovered out of band via /device-info, never from the poll stream.
type ProtocolVersion int

const (
	ProtocolV1 ProtocolVersion = 1
	ProtocolV2 ProtocolVersion = 2
)

const (
	CapacityV1 = 6
	CapacityV2 = 8
)

// Capacity returns the number of patch slots the protocol version exposes.
func (v ProtocolVersion) Capacity() int {
	if v >= ProtocolV2 {
		return CapacityV2
	}
	return CapacityV1
}

// SlotRecord mirrors one hardware breakpoint/patch unit on the device.
// When Occupied is false the remaining fields are meaningless and are kept
// cleared so stale payload content can never leak into the table.
type SlotRecord struct {
	ID              int
	Occupied        bool
	FunctionName    string
	OriginalAddress string
	TargetAddress   string
	CodeSize        int
}

// Normalize clears every field except ID for unoccupied records.
func (r SlotRecord) Normalize() SlotRecord {
	if r.Occupied {
		return r
	}
	return SlotRecord{ID: r.ID}
}

// MemoryInfo describes the device-side patch memory pool.
type MemoryInfo struct {
	IsDynamic bool
	Base      uint64
	Size      uint64
	Used      uint64
}

// PercentUsed reports rounded usage; a zero-size pool is 0%, not an error.
func (m MemoryInfo) PercentUsed() int {
	if m.Size == 0 {
		return 0
	}
	return int(math.Round(100 * float64(m.Used) / float64(m.Size)))
}
