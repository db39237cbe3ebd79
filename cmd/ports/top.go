package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ports/internal/logging"
	"ports/internal/tui"
)

func init() {
	rootCmd.AddCommand(cmdTop)
}

var cmdTop = &cobra.Command{
	Use:   "top",
	Short: "Live dashboard of sockets and their owners",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The dashboard owns the terminal; keep log lines out of it.
		if out := loadedConfig.Logging.Output; out == "" || out == "stderr" {
			quiet := loadedConfig.Logging
			quiet.Output = "discard"
			if err := logging.Setup(quiet); err != nil {
				return err
			}
		}
		if err := tui.Run(controller(), tui.Options{Interval: loadedConfig.RefreshInterval}); err != nil {
			return fmt.Errorf("dashboard exited with error: %w", err)
		}
		return nil
	},
}
