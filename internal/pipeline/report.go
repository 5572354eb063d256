package pipeline

import (
	"encoding/json"
	"time"

	"loom/internal/reconcile"
	"loom/internal/timeline"
)

// RunStatus summarizes the outcome of a whole run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// SliceReport records the reconciliation outcome for one assembled segment.
type SliceReport struct {
	Index       int     `json:"index"`
	Adjustment  string  `json:"adjustment"`
	Factor      float64 `json:"factor,omitempty"`
	VideoSpanMs int64   `json:"video_span_ms"`
	ResidualMs  int64   `json:"residual_ms,omitempty"`
}

// Report is the run manifest written next to the output video.
type Report struct {
	RunID            string        `json:"run_id"`
	Status           RunStatus     `json:"status"`
	SourceVideo      string        `json:"source_video"`
	CaptionsPath     string        `json:"captions_path"`
	TargetLanguage   string        `json:"target_language"`
	VoiceID          string        `json:"voice_id,omitempty"`
	OutputVideo      string        `json:"output_video,omitempty"`
	OutputAudio      string        `json:"output_audio,omitempty"`
	OutputDurationMs int64         `json:"output_duration_ms"`
	TotalSegments    int           `json:"total_segments"`
	AssembledCount   int           `json:"assembled_segments"`
	ExcludedIndices  []int         `json:"excluded_indices,omitempty"`
	Slices           []SliceReport `json:"slices"`
	CompletedAt      time.Time     `json:"completed_at"`
}

func buildReport(runID string, tl timeline.Timeline, slices []reconcile.Slice, total int, excluded []int) *Report {
	report := &Report{
		RunID:            runID,
		Status:           RunCompleted,
		OutputDurationMs: tl.Total.Milliseconds(),
		TotalSegments:    total,
		AssembledCount:   len(slices),
		ExcludedIndices:  excluded,
		Slices:           make([]SliceReport, 0, len(slices)),
		CompletedAt:      time.Now().UTC(),
	}
	if len(excluded) > 0 {
		report.Status = RunPartial
	}
	for _, slice := range slices {
		sr := SliceReport{
			Index:       slice.Index,
			Adjustment:  string(slice.Adjustment),
			VideoSpanMs: slice.VideoSpan.Milliseconds(),
			ResidualMs:  slice.Residual.Milliseconds(),
		}
		if slice.Adjustment == reconcile.AdjustmentRetime {
			sr.Factor = slice.Factor
		}
		report.Slices = append(report.Slices, sr)
	}
	return report
}

// JSON renders the manifest with stable indentation.
func (r *Report) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
