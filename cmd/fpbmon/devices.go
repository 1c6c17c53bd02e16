package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/prefs"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List remembered devices, most recently used first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := prefs.Open(ctx, cfg.PrefsPath)
		if err != nil {
			return fmt.Errorf("open prefs store: %w", err)
		}
		defer store.Close() //nolint:errcheck
		if err := prefs.ApplyMigrations(ctx, store.DB()); err != nil {
			return fmt.Errorf("migrate prefs store: %w", err)
		}

		profiles, err := store.Profiles(ctx)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("no remembered devices")
			return nil
		}
		for _, p := range profiles {
			fmt.Printf("%-16s %-32s last used %s\n",
				p.Name, p.BaseURL, p.LastUsedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
