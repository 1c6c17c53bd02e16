package syncengine

import (
	"strings"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/api"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
)

// recordsFromEntries maps wire slot entries onto table records. Unoccupied
// entries come back cleared no matter what the payload carried.
func recordsFromEntries(entries []api.SlotEntry) []model.SlotRecord {
	records := make([]model.SlotRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, model.SlotRecord{
			ID:              entry.ID,
			Occupied:        entry.Occupied,
			FunctionName:    entry.Func,
			OriginalAddress: entry.OrigAddr,
			TargetAddress:   entry.TargetAddr,
			CodeSize:        entry.CodeSize,
		}.Normalize())
	}
	return records
}

func memoryFromBlock(block api.MemoryBlock) model.MemoryInfo {
	return model.MemoryInfo{
		IsDynamic: block.IsDynamic,
		Base:      block.Base,
		Size:      block.Size,
		Used:      block.Used,
	}
}

// NormalizeRaw rewrites bare newlines to CRLF for terminal display while
// leaving existing CRLF pairs untouched.
func NormalizeRaw(data string) string {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	return strings.ReplaceAll(data, "\n", "\r\n")
}
