package segment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Append inserts a parsed cue for a run, enforcing the ordering invariants:
// strictly increasing index, well-formed span, and no overlap with the
// previous cue. Violations fail with ErrOrderingViolation before any
// network cost is incurred.
func (s *Store) Append(ctx context.Context, runID string, cue Cue) error {
	if cue.Index < 1 {
		return fmt.Errorf("%w: index %d is not positive", ErrOrderingViolation, cue.Index)
	}
	if cue.Start < 0 || cue.Start >= cue.End {
		return fmt.Errorf("%w: cue %d has inverted span %s..%s", ErrOrderingViolation, cue.Index, cue.Start, cue.End)
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT idx, end_ms FROM segments WHERE run_id = ? ORDER BY idx DESC LIMIT 1`,
		runID,
	)
	var lastIdx int
	var lastEndMs int64
	switch err := row.Scan(&lastIdx, &lastEndMs); {
	case errors.Is(err, sql.ErrNoRows):
		// First cue of the run.
	case err != nil:
		return fmt.Errorf("query last cue: %w", err)
	default:
		if cue.Index <= lastIdx {
			return fmt.Errorf("%w: index %d does not increase past %d", ErrOrderingViolation, cue.Index, lastIdx)
		}
		if cue.Start < time.Duration(lastEndMs)*time.Millisecond {
			return fmt.Errorf("%w: cue %d starts at %s before previous cue ends at %s",
				ErrOrderingViolation, cue.Index, cue.Start, time.Duration(lastEndMs)*time.Millisecond)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO segments (run_id, idx, start_ms, end_ms, source_text, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		cue.Index,
		cue.Start.Milliseconds(),
		cue.End.Milliseconds(),
		strings.TrimSpace(cue.Text),
		StatusParsed,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// AppendAll inserts a batch of parsed cues in order.
func (s *Store) AppendAll(ctx context.Context, runID string, cues []Cue) error {
	for _, cue := range cues {
		if err := s.Append(ctx, runID, cue); err != nil {
			return err
		}
	}
	return nil
}

// SetTranslation records the translated text for a segment. The segment must
// still be in the parsed state: translation always precedes audio.
func (s *Store) SetTranslation(ctx context.Context, runID string, index int, text string) error {
	current, err := s.Get(ctx, runID, index)
	if err != nil {
		return err
	}
	if current.Status != StatusParsed {
		return fmt.Errorf("%w: segment %d is %s, translation requires parsed", ErrInvalidState, index, current.Status)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE segments SET target_text = ?, status = ?, updated_at = ? WHERE run_id = ? AND idx = ?`,
		strings.TrimSpace(text),
		StatusTranslated,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
		index,
	)
	if err != nil {
		return fmt.Errorf("set translation: %w", err)
	}
	return nil
}

// SetAudio records the synthesized audio artifact for a segment. The segment
// must already carry a translation.
func (s *Store) SetAudio(ctx context.Context, runID string, index int, path string, duration time.Duration) error {
	current, err := s.Get(ctx, runID, index)
	if err != nil {
		return err
	}
	if current.Status != StatusTranslated {
		return fmt.Errorf("%w: segment %d is %s, audio requires translated", ErrInvalidState, index, current.Status)
	}
	if duration <= 0 {
		return fmt.Errorf("%w: segment %d audio duration %s is not positive", ErrInvalidState, index, duration)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE segments SET audio_path = ?, audio_duration_ms = ?, status = ?, updated_at = ? WHERE run_id = ? AND idx = ?`,
		path,
		duration.Milliseconds(),
		StatusSynthesized,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
		index,
	)
	if err != nil {
		return fmt.Errorf("set audio: %w", err)
	}
	return nil
}

// Advance moves a segment to the next lifecycle status.
func (s *Store) Advance(ctx context.Context, runID string, index int, to Status) error {
	current, err := s.Get(ctx, runID, index)
	if err != nil {
		return err
	}
	if !CanAdvance(current.Status, to) {
		return fmt.Errorf("%w: segment %d cannot move %s -> %s", ErrInvalidState, index, current.Status, to)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE segments SET status = ?, updated_at = ? WHERE run_id = ? AND idx = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
		index,
	)
	if err != nil {
		return fmt.Errorf("advance segment: %w", err)
	}
	return nil
}

// MarkFailed records a retryable failure and bumps the attempt counter.
func (s *Store) MarkFailed(ctx context.Context, runID string, index int, message string) error {
	return s.markTerminalish(ctx, runID, index, StatusFailed, message, true)
}

// MarkExcluded removes a segment from assembly after retries are exhausted.
func (s *Store) MarkExcluded(ctx context.Context, runID string, index int, message string) error {
	return s.markTerminalish(ctx, runID, index, StatusExcluded, message, false)
}

func (s *Store) markTerminalish(ctx context.Context, runID string, index int, to Status, message string, bumpAttempts bool) error {
	current, err := s.Get(ctx, runID, index)
	if err != nil {
		return err
	}
	if !CanAdvance(current.Status, to) {
		return fmt.Errorf("%w: segment %d cannot move %s -> %s", ErrInvalidState, index, current.Status, to)
	}
	attempts := current.Attempts
	if bumpAttempts {
		attempts++
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE segments SET status = ?, attempts = ?, error_message = ?, updated_at = ? WHERE run_id = ? AND idx = ?`,
		to,
		attempts,
		strings.TrimSpace(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
		index,
	)
	if err != nil {
		return fmt.Errorf("mark segment %s: %w", to, err)
	}
	return nil
}

// ResetFailed returns a failed segment to the state its next attempt starts
// from: parsed when translation is missing, translated otherwise.
func (s *Store) ResetFailed(ctx context.Context, runID string, index int) error {
	current, err := s.Get(ctx, runID, index)
	if err != nil {
		return err
	}
	if current.Status != StatusFailed {
		return fmt.Errorf("%w: segment %d is %s, reset requires failed", ErrInvalidState, index, current.Status)
	}
	// A recorded translation (even an empty one) resumes from translated;
	// only a segment that never translated goes back to parsed.
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE segments
         SET status = CASE WHEN target_text IS NULL THEN ? ELSE ? END,
             error_message = '', updated_at = ?
         WHERE run_id = ? AND idx = ?`,
		StatusParsed,
		StatusTranslated,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
		index,
	)
	if err != nil {
		return fmt.Errorf("reset segment: %w", err)
	}
	return nil
}

// Get fetches a single segment, failing with ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, runID string, index int) (*Segment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE run_id = ? AND idx = ?`, runID, index)
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s segment %d", ErrNotFound, runID, index)
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

// Snapshot returns a copy of all segments for a run in index order.
// Mutations after the snapshot is taken are not visible to it.
func (s *Store) Snapshot(ctx context.Context, runID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("snapshot segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, *seg)
	}
	return segments, rows.Err()
}

// Iterate produces a lazy, restartable sequence over a snapshot of the run's
// segments in index order.
func (s *Store) Iterate(ctx context.Context, runID string) (iter.Seq[Segment], error) {
	snapshot, err := s.Snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	return func(yield func(Segment) bool) {
		for _, seg := range snapshot {
			if !yield(seg) {
				return
			}
		}
	}, nil
}

// Stats returns a count of segments grouped by status for a run.
func (s *Store) Stats(ctx context.Context, runID string) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM segments WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("segment stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ExcludedIndices returns the indices dropped from assembly, in order.
func (s *Store) ExcludedIndices(ctx context.Context, runID string) ([]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT idx FROM segments WHERE run_id = ? AND status = ? ORDER BY idx`,
		runID,
		StatusExcluded,
	)
	if err != nil {
		return nil, fmt.Errorf("excluded indices: %w", err)
	}
	defer rows.Close()

	var indices []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return indices, rows.Err()
}

const segmentColumns = "run_id, idx, start_ms, end_ms, source_text, target_text, audio_path, audio_duration_ms, status, attempts, error_message, created_at, updated_at"

func scanSegment(scanner interface{ Scan(dest ...any) error }) (*Segment, error) {
	var (
		runID        string
		idx          int
		startMs      int64
		endMs        int64
		sourceText   string
		targetText   sql.NullString
		audioPath    sql.NullString
		audioMs      sql.NullInt64
		statusStr    string
		attempts     int
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&runID,
		&idx,
		&startMs,
		&endMs,
		&sourceText,
		&targetText,
		&audioPath,
		&audioMs,
		&statusStr,
		&attempts,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	seg := &Segment{
		RunID:        runID,
		Index:        idx,
		Start:        time.Duration(startMs) * time.Millisecond,
		End:          time.Duration(endMs) * time.Millisecond,
		SourceText:   sourceText,
		TargetText:   targetText.String,
		AudioPath:    audioPath.String,
		Status:       Status(statusStr),
		Attempts:     attempts,
		ErrorMessage: errorMessage.String,
	}
	if audioMs.Valid {
		seg.AudioDuration = time.Duration(audioMs.Int64) * time.Millisecond
	}
	if t, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		seg.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		seg.UpdatedAt = t
	}
	return seg, nil
}
