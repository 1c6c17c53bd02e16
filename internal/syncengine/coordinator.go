package syncengine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/metrics"
)

var (
	// ErrNotConnected is returned when a mutation is attempted before device
	// discovery completed. No network call is made in that case.
	ErrNotConnected = errors.New("device not connected")

	// ErrDeclined is returned when the operator declines the clear-all
	// confirmation. Zero network calls, zero state changes.
	ErrDeclined = errors.New("clear all declined")
)

// RejectedError is an application-level failure: the transport succeeded but
// the device refused the mutation. Local state is left untouched.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e == nil || e.Message == "" {
		return "device rejected mutation"
	}
	return e.Message
}

// Confirmer resolves the synchronous yes/no decision required before a bulk
// clear. It runs before any network call.
type Confirmer func() bool

// Coordinator performs slot-clear mutations and then forces one immediate
// out-of-band fetch-and-merge cycle so the table reflects the authoritative
// post-mutation server state. It never writes the slot table or the cursors
// itself.
type Coordinator struct {
	engine  *Engine
	confirm Confirmer
	log     *zap.Logger
}

func NewCoordinator(engine *Engine, confirm Confirmer, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{engine: engine, confirm: confirm, log: logger}
}

// ClearSlot frees one patch slot on the device.
func (c *Coordinator) ClearSlot(ctx context.Context, id int) error {
	if id < 0 || id >= c.engine.Capacity() {
		return fmt.Errorf("invalid slot id %d", id)
	}
	if !c.engine.Connected() {
		return ErrNotConnected
	}
	resp, err := c.engine.transport.ClearSlot(ctx, id)
	if err != nil {
		metrics.MutationsTotal.WithLabelValues("clear", metrics.OutcomeTransportError).Inc()
		return fmt.Errorf("clear slot %d: %w", id, err)
	}
	if !resp.Success {
		metrics.MutationsTotal.WithLabelValues("clear", metrics.OutcomeRejected).Inc()
		return &RejectedError{Message: resp.Message}
	}
	metrics.MutationsTotal.WithLabelValues("clear", metrics.OutcomeOK).Inc()
	c.log.Info("slot cleared", zap.Int("slot_id", id))
	c.refresh(ctx)
	return nil
}

// ClearAllSlots frees every patch slot on the device after an explicit
// operator confirmation.
func (c *Coordinator) ClearAllSlots(ctx context.Context) error {
	if !c.engine.Connected() {
		return ErrNotConnected
	}
	if c.confirm == nil || !c.confirm() {
		return ErrDeclined
	}
	resp, err := c.engine.transport.ClearAllSlots(ctx)
	if err != nil {
		metrics.MutationsTotal.WithLabelValues("clear_all", metrics.OutcomeTransportError).Inc()
		return fmt.Errorf("clear all slots: %w", err)
	}
	if !resp.Success {
		metrics.MutationsTotal.WithLabelValues("clear_all", metrics.OutcomeRejected).Inc()
		return &RejectedError{Message: resp.Message}
	}
	metrics.MutationsTotal.WithLabelValues("clear_all", metrics.OutcomeOK).Inc()
	c.log.Info("all slots cleared")
	c.refresh(ctx)
	return nil
}

// refresh runs the single extra cycle that follows a successful mutation.
// Its failure is the ordinary silent kind: the next scheduled tick catches
// up, and the version gate still applies to whatever arrives.
func (c *Coordinator) refresh(ctx context.Context) {
	if err := c.engine.CycleOnce(ctx); err != nil {
		c.log.Debug("post-mutation refresh failed", zap.Error(err))
	}
}
