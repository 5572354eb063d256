package segment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"loom/internal/config"
)

// Store manages run and segment persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source_video TEXT NOT NULL,
    captions_path TEXT NOT NULL,
    target_lang TEXT NOT NULL,
    voice_id TEXT,
    status TEXT NOT NULL,
    manifest_json TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    start_ms INTEGER NOT NULL,
    end_ms INTEGER NOT NULL,
    source_text TEXT NOT NULL,
    target_text TEXT,
    audio_path TEXT,
    audio_duration_ms INTEGER,
    status TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (run_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_segments_status ON segments(run_id, status);
`

// Open initializes or connects to the run database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.WorkDir, "loom.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// NewRun inserts a run record for a source video and its captions.
func (s *Store) NewRun(ctx context.Context, sourceVideo, captionsPath, targetLang string) (*Run, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, source_video, captions_path, target_lang, voice_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, NULL, ?, ?, ?)`,
		id,
		sourceVideo,
		captionsPath,
		targetLang,
		"running",
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun fetches a run by identifier.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, source_video, captions_path, target_lang, voice_id, status, manifest_json, created_at, updated_at
         FROM runs WHERE id = ?`,
		id,
	)
	var (
		run      Run
		voiceID  sql.NullString
		manifest sql.NullString
		created  string
		updated  string
	)
	err := row.Scan(&run.ID, &run.SourceVideo, &run.CaptionsPath, &run.TargetLang, &voiceID, &run.Status, &manifest, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.VoiceID = voiceID.String
	run.ManifestJSON = manifest.String
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		run.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		run.UpdatedAt = t
	}
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source_video, captions_path, target_lang, voice_id, status, manifest_json, created_at, updated_at
         FROM runs ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			voiceID  sql.NullString
			manifest sql.NullString
			created  string
			updated  string
		)
		if err := rows.Scan(&run.ID, &run.SourceVideo, &run.CaptionsPath, &run.TargetLang, &voiceID, &run.Status, &manifest, &created, &updated); err != nil {
			return nil, err
		}
		run.VoiceID = voiceID.String
		run.ManifestJSON = manifest.String
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			run.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			run.UpdatedAt = t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SetRunVoice records the voice handle used for a run.
func (s *Store) SetRunVoice(ctx context.Context, runID, voiceID string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET voice_id = ?, updated_at = ? WHERE id = ?`,
		voiceID,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
	)
	if err != nil {
		return fmt.Errorf("set run voice: %w", err)
	}
	return requireRowAffected(res, runID)
}

// FinishRun records the terminal status and manifest for a run.
func (s *Store) FinishRun(ctx context.Context, runID, status, manifestJSON string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, manifest_json = ?, updated_at = ? WHERE id = ?`,
		status,
		nullableString(manifestJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRowAffected(res, runID)
}

func requireRowAffected(res sql.Result, runID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
