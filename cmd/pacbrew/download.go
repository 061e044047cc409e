package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacbrew/pacbrew/internal/pipeline"
)

var downloadForce bool

var downloadCmd = &cobra.Command{
	Use:   "download <name...>",
	Short: "Resolve, probe, fetch, and verify one or more packages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loadConfig()
		if err != nil {
			return err
		}
		formulas, err := readCatalog(l)
		if err != nil {
			return err
		}

		opts, _, err := pipelineOptions(l, downloadForce, false)
		if err != nil {
			return err
		}

		listeners, stop := interactiveListeners()
		defer stop()

		cached, err := pipeline.Download(cmd.Context(), opts, formulas, args, listeners)
		if err != nil {
			return err
		}

		for _, c := range cached {
			fmt.Printf("%s -> %s\n", c.Name, c.CachePkg)
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().BoolVar(&downloadForce, "force", false, "re-download even if the cache already has a matching file")
}
