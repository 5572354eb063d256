package segment

import (
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle of a segment within a run.
type Status string

const (
	StatusParsed      Status = "parsed"
	StatusTranslated  Status = "translated"
	StatusSynthesized Status = "synthesized"
	StatusReconciled  Status = "reconciled"
	StatusAssembled   Status = "assembled"
	StatusFailed      Status = "failed"
	StatusExcluded    Status = "excluded"
)

var (
	// ErrOrderingViolation reports malformed caption input: non-increasing
	// indices, inverted spans, or overlapping cues.
	ErrOrderingViolation = errors.New("ordering violation")
	// ErrNotFound reports a mutation against an absent segment index.
	ErrNotFound = errors.New("segment not found")
	// ErrInvalidState reports a mutation applied out of lifecycle order.
	ErrInvalidState = errors.New("invalid segment state")
)

var allStatuses = []Status{
	StatusParsed,
	StatusTranslated,
	StatusSynthesized,
	StatusReconciled,
	StatusAssembled,
	StatusFailed,
	StatusExcluded,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// forwardTransitions holds the allowed lifecycle advances. Failed and
// excluded are reachable from any non-terminal state and are handled
// separately.
var forwardTransitions = map[Status]Status{
	StatusParsed:      StatusTranslated,
	StatusTranslated:  StatusSynthesized,
	StatusSynthesized: StatusReconciled,
	StatusReconciled:  StatusAssembled,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanAdvance reports whether a segment may move from one status to another.
func CanAdvance(from, to Status) bool {
	if to == StatusFailed || to == StatusExcluded {
		return from != StatusAssembled
	}
	return forwardTransitions[from] == to
}

// IsTerminal reports whether a status ends the segment's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAssembled, StatusExcluded:
		return true
	default:
		return false
	}
}

// Cue is a parsed caption entry awaiting storage.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Span returns the original duration of the cue.
func (c Cue) Span() time.Duration {
	return c.End - c.Start
}

// Segment is a cue record persisted in SQLite along with its evolving
// translation and synthesis attributes.
type Segment struct {
	RunID         string
	Index         int
	Start         time.Duration
	End           time.Duration
	SourceText    string
	TargetText    string
	AudioPath     string
	AudioDuration time.Duration
	Status        Status
	Attempts      int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Span returns the original cue duration.
func (s Segment) Span() time.Duration {
	return s.End - s.Start
}

// HasAudio reports whether synthesis output has been recorded.
func (s Segment) HasAudio() bool {
	return s.AudioPath != "" && s.AudioDuration > 0
}

// Run represents one dubbing run over a single video.
type Run struct {
	ID           string
	SourceVideo  string
	CaptionsPath string
	TargetLang   string
	VoiceID      string
	Status       string
	ManifestJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
