package srt

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"loom/internal/segment"
)

// ErrMalformedCaption reports a caption block whose timing line cannot be
// understood.
var ErrMalformedCaption = errors.New("malformed caption")

// ParseFile reads an SRT file and returns its cues in file order.
func ParseFile(path string) ([]segment.Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return Parse(string(data))
}

// Parse converts SRT content into cues. Cue numbers in the content are
// ignored; the result is reindexed 1..n.
func Parse(content string) ([]segment.Cue, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	var cues []segment.Cue
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		cue, err := parseBlock(block)
		if err != nil {
			return nil, err
		}
		cue.Index = len(cues) + 1
		cues = append(cues, cue)
	}
	return cues, nil
}

func parseBlock(block string) (segment.Cue, error) {
	lines := strings.Split(block, "\n")

	// The first line is usually a sequence number; skip it when present so
	// files with stale numbering still parse.
	timingIdx := 0
	if len(lines) > 1 && !strings.Contains(lines[0], "-->") {
		if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
			timingIdx = 1
		}
	}
	if timingIdx >= len(lines) || !strings.Contains(lines[timingIdx], "-->") {
		return segment.Cue{}, fmt.Errorf("%w: missing timing line in block %q", ErrMalformedCaption, firstLine(block))
	}

	parts := strings.Split(lines[timingIdx], "-->")
	if len(parts) != 2 {
		return segment.Cue{}, fmt.Errorf("%w: timing line %q", ErrMalformedCaption, lines[timingIdx])
	}
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return segment.Cue{}, fmt.Errorf("%w: %v", ErrMalformedCaption, err)
	}
	end, err := parseTimestamp(parts[1])
	if err != nil {
		return segment.Cue{}, fmt.Errorf("%w: %v", ErrMalformedCaption, err)
	}

	var textLines []string
	for _, line := range lines[timingIdx+1:] {
		line = strings.TrimSpace(line)
		if line != "" {
			textLines = append(textLines, line)
		}
	}

	return segment.Cue{
		Start: start,
		End:   end,
		Text:  strings.Join(textLines, " "),
	}, nil
}

func parseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	// Some producers emit a period before the milliseconds; the SRT standard
	// uses a comma.
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 || millis < 0 || millis > 999 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return total, nil
}

// FormatTimestamp renders a duration as an SRT timestamp.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	millis := d.Milliseconds()
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	seconds := millis / 1000
	millis -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

func firstLine(block string) string {
	if idx := strings.IndexByte(block, '\n'); idx >= 0 {
		return block[:idx]
	}
	return block
}
