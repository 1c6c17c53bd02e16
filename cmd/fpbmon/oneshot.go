package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/api"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/deviceclient"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/render"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/syncengine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch and print the device's slot table and memory state once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, info, err := oneShotEngine(ctx, syncengine.Sinks{})
		if err != nil {
			return err
		}
		fmt.Printf("firmware %s, protocol v%d, %d slots\n\n",
			info.Firmware, info.ProtocolVersion, info.Capacity)
		records, version := engine.Snapshot()
		fmt.Print(render.SlotTable(records, -1))
		if memory, ok := engine.Memory(); ok {
			fmt.Println(render.Memory(memory))
		}
		fmt.Printf("slot version %d\n", version)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <slot-id>",
	Short: "Free one patch slot on the device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid slot id %q", args[0])
		}
		ctx := cmd.Context()
		engine, _, err := oneShotEngine(ctx, syncengine.Sinks{})
		if err != nil {
			return err
		}
		coordinator := syncengine.NewCoordinator(engine, nil, logger)
		if err := coordinator.ClearSlot(ctx, id); err != nil {
			return err
		}
		fmt.Printf("slot %d cleared\n", id)
		return nil
	},
}

var clearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Free every patch slot on the device (asks for confirmation)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, _, err := oneShotEngine(ctx, syncengine.Sinks{})
		if err != nil {
			return err
		}
		coordinator := syncengine.NewCoordinator(engine, confirmOnStdin, logger)
		err = coordinator.ClearAllSlots(ctx)
		if errors.Is(err, syncengine.ErrDeclined) {
			// Declining is the outcome, not an error.
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("all slots cleared")
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Drain and print the device's buffered tool log once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sinks := syncengine.Sinks{
			ToolLog: func(line string) { fmt.Println(line) },
		}
		engine, _, err := oneShotEngine(ctx, sinks)
		if err != nil {
			return err
		}
		return engine.CycleOnce(ctx)
	},
}

// oneShotEngine builds an engine for a single command invocation: discovery,
// construction at the discovered capacity, and the initial snapshot. No
// poller is started.
func oneShotEngine(ctx context.Context, sinks syncengine.Sinks) (*syncengine.Engine, api.DeviceInfoResponse, error) {
	client := deviceclient.New(cfg.DeviceURL).WithUnaryTimeout(cfg.HTTPTimeout)
	info, err := client.DeviceInfo(ctx)
	if err != nil {
		return nil, api.DeviceInfoResponse{}, fmt.Errorf("device discovery: %w", err)
	}
	engine, err := syncengine.New(syncengine.EngineConfig{
		Transport: client,
		Capacity:  info.Capacity,
		Interval:  cfg.PollInterval,
		Sinks:     sinks,
		Logger:    logger,
	})
	if err != nil {
		return nil, api.DeviceInfoResponse{}, err
	}
	if err := engine.Bootstrap(ctx); err != nil {
		return nil, api.DeviceInfoResponse{}, fmt.Errorf("initial snapshot: %w", err)
	}
	logger.Debug("one-shot engine ready", zap.Int("capacity", info.Capacity))
	return engine, info, nil
}

func confirmOnStdin() bool {
	fmt.Print("clear ALL slots? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
