package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/segment"
)

func newManifestCommand(configFlag *string) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Show the manifest of a finished run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			store, err := segment.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if runID == "" {
				runs, err := store.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderRunTable(runs))
				fmt.Fprintln(out, "Use --run <id> to print a run's manifest")
				return nil
			}

			run, err := store.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", runID)
			}
			if run.ManifestJSON == "" {
				return fmt.Errorf("run %s has no manifest (status %s)", runID, run.Status)
			}
			fmt.Fprintln(out, run.ManifestJSON)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run identifier")
	return cmd
}
