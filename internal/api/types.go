// Package api holds the JSON wire types spoken between the operator tool and
// the device firmware's HTTP endpoint. Field names follow the firmware, not
// Go conventions, so they are pinned with tags.
package api

// PollResponse is the envelope returned by GET /poll. Every section is
// optional; the device sends only what advanced since the supplied cursors.
type PollResponse struct {
	ToolNext     int64     `json:"tool_next"`
	RawNext      int64     `json:"raw_next"`
	ToolLogs     []string  `json:"tool_logs,omitempty"`
	RawData      string    `json:"raw_data,omitempty"`
	SlotUpdateID *int64    `json:"slot_update_id,omitempty"`
	SlotData     *SlotData `json:"slot_data,omitempty"`
}

// SlotData carries a sparse or complete slot snapshot plus, optionally, the
// state of the patch memory pool.
type SlotData struct {
	Slots  []SlotEntry  `json:"slots"`
	Memory *MemoryBlock `json:"memory,omitempty"`
}

// SlotEntry is one slot as stated by the device. Entries address slots by id;
// array position is meaningless.
type SlotEntry struct {
	ID         int    `json:"id"`
	Occupied   bool   `json:"occupied"`
	Func       string `json:"func,omitempty"`
	OrigAddr   string `json:"orig_addr,omitempty"`
	TargetAddr string `json:"target_addr,omitempty"`
	CodeSize   int    `json:"code_size,omitempty"`
}

type MemoryBlock struct {
	IsDynamic bool   `json:"is_dynamic"`
	Base      uint64 `json:"base,omitempty"`
	Size      uint64 `json:"size,omitempty"`
	Used      uint64 `json:"used,omitempty"`
}

// MutateRequest clears a single slot (SlotID set) or every slot (All set).
type MutateRequest struct {
	SlotID *int `json:"slot_id,omitempty"`
	All    bool `json:"all,omitempty"`
}

// MutateResponse reports the application-level outcome of POST /mutate.
// Success false with a 2xx status is a device-side rejection, not a
// transport failure.
type MutateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SlotInfoResponse is the full snapshot returned by GET /slot-info.
type SlotInfoResponse struct {
	SlotUpdateID int64    `json:"slot_update_id"`
	SlotData     SlotData `json:"slot_data"`
}

// DeviceInfoResponse is the discovery payload of GET /device-info.
type DeviceInfoResponse struct {
	ProtocolVersion int    `json:"protocol_version"`
	Capacity        int    `json:"capacity"`
	Firmware        string `json:"firmware,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
