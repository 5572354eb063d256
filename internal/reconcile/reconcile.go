package reconcile

import (
	"fmt"
	"time"

	"loom/internal/config"
	"loom/internal/segment"
	"loom/internal/services"
)

// Adjustment names the strategy used to fit a segment's video span to its
// synthesized audio.
type Adjustment string

const (
	// AdjustmentNone keeps the original span; the duration delta is within
	// tolerance and absorbed by trimming or padding the audio tail.
	AdjustmentNone Adjustment = "none"
	// AdjustmentExtendFreeze holds the segment's last frame so the video
	// covers audio that runs longer than the original span.
	AdjustmentExtendFreeze Adjustment = "extend_freeze"
	// AdjustmentTrim cuts the trailing portion of the video to match
	// shorter audio.
	AdjustmentTrim Adjustment = "trim"
	// AdjustmentRetime speeds the video up within a bounded factor when
	// trimming would leave too little visible footage.
	AdjustmentRetime Adjustment = "retime"
)

// Slice is the reconciled rendering plan for one segment. After adjustment
// VideoSpan equals AudioSpan exactly; Residual records any silence padded
// onto the audio tail to get there.
type Slice struct {
	Index       int
	SourceStart time.Duration
	SourceEnd   time.Duration
	AudioPath   string
	VideoSpan   time.Duration
	AudioSpan   time.Duration
	Adjustment  Adjustment
	Factor      float64
	Residual    time.Duration
}

// SourceSpan returns the segment's original duration in the source video.
func (s Slice) SourceSpan() time.Duration {
	return s.SourceEnd - s.SourceStart
}

// Reconciler applies the duration policy using configured thresholds.
type Reconciler struct {
	tolerance  time.Duration
	minVisible time.Duration
	minFactor  float64
	maxFactor  float64
}

// New builds a Reconciler from the reconcile section of the configuration.
func New(cfg config.Reconcile) *Reconciler {
	return &Reconciler{
		tolerance:  time.Duration(cfg.ToleranceMs) * time.Millisecond,
		minVisible: time.Duration(cfg.MinVisibleMs) * time.Millisecond,
		minFactor:  cfg.RetimeMinFactor,
		maxFactor:  cfg.RetimeMaxFactor,
	}
}

// Reconcile decides the adjustment for one segment. The segment must carry
// synthesized audio.
func (r *Reconciler) Reconcile(seg segment.Segment) (Slice, error) {
	if !seg.HasAudio() {
		return Slice{}, services.Wrap(services.ErrInvariant, "reconcile", fmt.Sprintf("segment %d", seg.Index), "segment has no synthesized audio", nil)
	}
	original := seg.Span()
	if original <= 0 {
		return Slice{}, services.Wrap(services.ErrInvariant, "reconcile", fmt.Sprintf("segment %d", seg.Index), "segment span is not positive", nil)
	}

	slice := Slice{
		Index:       seg.Index,
		SourceStart: seg.Start,
		SourceEnd:   seg.End,
		AudioPath:   seg.AudioPath,
		Factor:      1.0,
	}
	audio := seg.AudioDuration
	delta := audio - original

	switch {
	case delta.Abs() <= r.tolerance:
		// Imperceptible mismatch: keep the original span and absorb the
		// delta on the audio side.
		slice.Adjustment = AdjustmentNone
		slice.VideoSpan = original
		slice.AudioSpan = original
		if delta < 0 {
			slice.Residual = -delta
		}
	case delta > 0:
		slice.Adjustment = AdjustmentExtendFreeze
		slice.VideoSpan = audio
		slice.AudioSpan = audio
	case audio >= r.minVisible:
		slice.Adjustment = AdjustmentTrim
		slice.VideoSpan = audio
		slice.AudioSpan = audio
	default:
		// Trimming would leave less than the visible floor. Speed the
		// video up as far as the clamp allows and pad the remaining gap
		// with trailing silence.
		factor := clamp(original.Seconds()/audio.Seconds(), r.minFactor, r.maxFactor)
		retimed := time.Duration(float64(original) / factor).Round(time.Millisecond)
		slice.Adjustment = AdjustmentRetime
		slice.Factor = factor
		slice.VideoSpan = retimed
		slice.AudioSpan = retimed
		if retimed > audio {
			slice.Residual = retimed - audio
		}
	}

	if slice.VideoSpan != slice.AudioSpan {
		return Slice{}, services.Wrap(services.ErrInvariant, "reconcile", fmt.Sprintf("segment %d", seg.Index), "video span does not match audio span", nil)
	}
	return slice, nil
}

// ReconcileAll maps the policy over a run snapshot, skipping excluded
// segments.
func (r *Reconciler) ReconcileAll(segments []segment.Segment) ([]Slice, error) {
	slices := make([]Slice, 0, len(segments))
	for _, seg := range segments {
		if seg.Status == segment.StatusExcluded {
			continue
		}
		slice, err := r.Reconcile(seg)
		if err != nil {
			return nil, err
		}
		slices = append(slices, slice)
	}
	return slices, nil
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
