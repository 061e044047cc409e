package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pacbrew/pacbrew/internal/pipeline"
	"github.com/pacbrew/pacbrew/internal/progress"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download the latest formula catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loadConfig()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(l.cfg.Base.Cache, 0o755); err != nil {
			return err
		}

		listeners, stop := interactiveListeners()
		defer stop()

		var tracker *progress.Tracker[progress.DetailEvent[uint64, uint64]]
		if listeners != nil {
			tracker = listeners.Fetch
		}

		if err := pipeline.Update(cmd.Context(), l.registry, l.cfg.Base.Cache, tracker); err != nil {
			return err
		}

		fmt.Println("update formula.json success")
		return nil
	},
}
