package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"loom/internal/media"
	"loom/internal/pipeline"
	"loom/internal/segment"
	"loom/internal/services/eleven"
	"loom/internal/services/translate"
)

func newRunCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <video> <captions.srt>",
		Short: "Dub a video using its caption file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			logger := newLogger(cfg)

			// One run at a time per work directory; intermediate clips and
			// the run database are not safe to share.
			lock := flock.New(filepath.Join(cfg.Paths.WorkDir, "loom.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire work dir lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another run is already using %s", cfg.Paths.WorkDir)
			}
			defer lock.Unlock()

			store, err := segment.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			translator, err := translate.New(cfg.Translation)
			if err != nil {
				return err
			}
			synthesizer, err := eleven.New(cfg.Voice)
			if err != nil {
				return err
			}
			backend := media.NewBackend(cfg)

			p := pipeline.New(cfg, store, translator, synthesizer, backend, logger)
			report, err := p.Run(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s %s\n", report.RunID, report.Status)
			fmt.Fprintf(out, "Output: %s\n", report.OutputVideo)
			fmt.Fprintf(out, "Audio:  %s\n", report.OutputAudio)
			fmt.Fprintln(out, renderSliceTable(report))
			if len(report.ExcludedIndices) > 0 {
				fmt.Fprintf(out, "Excluded segments: %s\n", joinInts(report.ExcludedIndices))
			}
			return nil
		},
	}
	return cmd
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ", ")
}
