package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacbrew/pacbrew/internal/pipeline"
)

var installForce bool

var installCmd = &cobra.Command{
	Use:   "install <name...>",
	Short: "Run the full pipeline (resolve through link) for one or more packages",
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

		opts, store, err := pipelineOptions(l, installForce, true)
		if err != nil {
			return err
		}
		defer store.Close()

		listeners, stop := interactiveListeners()
		defer stop()

		linked, err := pipeline.Install(cmd.Context(), opts, formulas, args, listeners)
		if err != nil {
			return err
		}

		for _, lk := range linked {
			fmt.Printf("installed %s %s\n", lk.Name, lk.Version)
		}
		return nil
	},
}

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "reinstall even if the package is already unpacked")
}
