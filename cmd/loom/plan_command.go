package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"loom/internal/reconcile"
	"loom/internal/segment"
	"loom/internal/srt"
)

func newPlanCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <captions.srt>",
		Short: "Preview reconciliation decisions without calling any API",
		Long: "Plan parses the caption file, estimates how long each translated line " +
			"will take to speak at the configured speech rate, and shows the " +
			"adjustment the reconciler would choose for every segment.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}

			cues, err := srt.ParseFile(args[0])
			if err != nil {
				return err
			}
			if len(cues) == 0 {
				return fmt.Errorf("caption file %s has no cues", args[0])
			}

			reconciler := reconcile.New(cfg.Reconcile)
			rows := make([][]string, 0, len(cues))
			var total time.Duration
			for _, cue := range cues {
				estimate := estimateSpeech(cue.Text, cfg.Media.SpeechRate)
				if estimate == 0 {
					// Blank cues become silence covering the original span.
					estimate = cue.Span()
				}
				slice, err := reconciler.Reconcile(segment.Segment{
					Index:         cue.Index,
					Start:         cue.Start,
					End:           cue.End,
					AudioPath:     "estimated",
					AudioDuration: estimate,
					Status:        segment.StatusSynthesized,
				})
				if err != nil {
					return err
				}
				total += slice.VideoSpan
				rows = append(rows, []string{
					fmt.Sprint(cue.Index),
					srt.FormatTimestamp(cue.Start),
					fmt.Sprintf("%.1fs", cue.Span().Seconds()),
					fmt.Sprintf("%.1fs", estimate.Seconds()),
					string(slice.Adjustment),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dubbing %d segments into %s (estimated output %.1fs)\n",
				len(cues), displayLanguage(cfg.Translation.TargetLanguage), total.Seconds())
			fmt.Fprintln(out, renderRows([]column{
				{title: "Segment", numeric: true},
				{title: "Start"},
				{title: "Span", numeric: true},
				{title: "Est. speech", numeric: true},
				{title: "Adjustment"},
			}, rows))
			return nil
		},
	}
	return cmd
}

// estimateSpeech guesses synthesized duration from text length. Translated
// German runs slightly longer than English, so the estimate leans long
// rather than short.
func estimateSpeech(text string, charsPerSecond float64) time.Duration {
	if charsPerSecond <= 0 {
		charsPerSecond = 14
	}
	chars := len([]rune(text))
	if chars == 0 {
		return 0
	}
	seconds := float64(chars) / charsPerSecond
	return time.Duration(seconds * float64(time.Second)).Round(10 * time.Millisecond)
}

func displayLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}
