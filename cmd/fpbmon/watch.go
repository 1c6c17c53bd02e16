package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/deviceclient"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/metrics"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/prefs"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/syncengine"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the device continuously and render its state in a TUI",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func runWatch(ctx context.Context) error {
	client := deviceclient.New(cfg.DeviceURL).WithUnaryTimeout(cfg.HTTPTimeout)

	info, err := client.DeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("device discovery: %w", err)
	}
	logger.Info("device discovered",
		zap.Int("protocol_version", info.ProtocolVersion),
		zap.Int("capacity", info.Capacity),
		zap.String("firmware", info.Firmware))

	store := openPrefs(ctx)
	defer store.Close() //nolint:errcheck
	rememberDevice(ctx, store)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	events := make(chan tea.Msg, 256)
	// The engine logs through Nop here: the alt screen owns the terminal.
	engine, err := syncengine.New(syncengine.EngineConfig{
		Transport: client,
		Capacity:  info.Capacity,
		Interval:  cfg.PollInterval,
		Sinks:     tui.Sinks(events),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		return err
	}
	// The TUI shows its own confirm modal before invoking the coordinator, so
	// the coordinator-level confirmation is already resolved.
	coordinator := syncengine.NewCoordinator(engine, func() bool { return true }, zap.NewNop())

	engine.Start()
	defer engine.Stop()
	if err := engine.Bootstrap(ctx); err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}

	model := tui.New(engine, coordinator, events).WithSelected(restoreSelection(ctx, store))
	program := tea.NewProgram(model, tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	if m, ok := final.(tui.Model); ok {
		saveSelection(ctx, store, m.Selected())
	}
	return nil
}

// openPrefs opens and migrates the preference store. All preference
// persistence is best effort and never blocks a session, so failures only
// warn and a nil store is tolerated downstream.
func openPrefs(ctx context.Context) *prefs.Store {
	store, err := prefs.Open(ctx, cfg.PrefsPath)
	if err != nil {
		logger.Warn("open prefs store", zap.Error(err))
		return nil
	}
	if err := prefs.ApplyMigrations(ctx, store.DB()); err != nil {
		logger.Warn("migrate prefs store", zap.Error(err))
		store.Close() //nolint:errcheck
		return nil
	}
	return store
}

// rememberDevice records the device in the profile store.
func rememberDevice(ctx context.Context, store *prefs.Store) {
	if store == nil {
		return
	}
	profile := prefs.DeviceProfile{Name: "last-used", BaseURL: cfg.DeviceURL, LastUsedAt: time.Now().UTC()}
	if err := store.SaveProfile(ctx, profile); err != nil {
		logger.Warn("save device profile", zap.Error(err))
	}
}

const selectedSlotKey = "watch.selected_slot"

func restoreSelection(ctx context.Context, store *prefs.Store) int {
	if store == nil {
		return 0
	}
	value, err := store.Layout(ctx, selectedSlotKey)
	if err != nil {
		return 0
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return id
}

func saveSelection(ctx context.Context, store *prefs.Store, id int) {
	if store == nil {
		return
	}
	if err := store.SetLayout(ctx, selectedSlotKey, strconv.Itoa(id)); err != nil {
		logger.Warn("save layout pref", zap.Error(err))
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics listener failed", zap.Error(err))
	}
}
