// Package render turns mirrored device state into display strings. Pure
// functions only; nothing here holds or mutates sync state.
package render

import (
	"fmt"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
)

// Memory renders the patch pool line. Dynamic pools have no fixed geometry,
// so only usage is shown; static pools show base, size, usage, and percent.
// A zero-size pool renders as 0%, never an error.
func Memory(info model.MemoryInfo) string {
	if info.IsDynamic {
		return fmt.Sprintf("patch memory: dynamic, %d bytes used", info.Used)
	}
	return fmt.Sprintf("patch memory: base 0x%08X, %d bytes total, %d used (%d%%)",
		info.Base, info.Size, info.Used, info.PercentUsed())
}
