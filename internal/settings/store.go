package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/toxguard/internal/model"
)

// Keys read by the scanner.
const (
	KeyThreshold   = "threshold"
	KeyKeywordList = "keywordList"
	KeyModelPath   = "modelPath"
)

// FileName is the database file created in the settings directory.
const FileName = "settings.db"

// Store is a flat key-value store for user settings, kept in SQLite.
// Values are stored as JSON text.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store in dir.
func Open(dir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check settings path: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Entry is one stored setting.
type Entry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Get returns the raw JSON value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores v under key as JSON.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize setting %s: %w", key, err)
	}
	query := `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(data)); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// Clear removes every setting.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		return fmt.Errorf("failed to clear settings: %w", err)
	}
	return nil
}

// List returns all settings ordered by key.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			timestamp string
		)
		if err := rows.Scan(&e.Key, &e.Value, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		e.UpdatedAt = parseTimestamp(timestamp)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Threshold returns the stored threshold, or model.DefaultThreshold when
// none is stored.
func (s *Store) Threshold(ctx context.Context) (float64, error) {
	raw, ok, err := s.Get(ctx, KeyThreshold)
	if err != nil || !ok {
		return model.DefaultThreshold, err
	}
	var t float64
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return model.DefaultThreshold, fmt.Errorf("%w: %s", ErrCorrupt, KeyThreshold)
	}
	return t, nil
}

// SetThreshold parses and stores a threshold typed by the user. Input that
// is not a number stores model.DefaultThreshold; numbers outside [0, 1]
// are rejected.
func (s *Store) SetThreshold(ctx context.Context, input string) (float64, error) {
	t := ParseThreshold(input)
	if err := model.ValidateThreshold(t); err != nil {
		return 0, err
	}
	return t, s.Set(ctx, KeyThreshold, t)
}

// Keywords returns the stored keyword list, nil when none is stored.
func (s *Store) Keywords(ctx context.Context) ([]string, error) {
	raw, ok, err := s.Get(ctx, KeyKeywordList)
	if err != nil || !ok {
		return nil, err
	}
	var words []string
	if err := json.Unmarshal([]byte(raw), &words); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, KeyKeywordList)
	}
	return words, nil
}

// SetKeywords stores the keyword list typed one per line, dropping blank
// lines and surrounding whitespace.
func (s *Store) SetKeywords(ctx context.Context, text string) ([]string, error) {
	words := ParseKeywordList(text)
	return words, s.Set(ctx, KeyKeywordList, words)
}

// ParseThreshold parses a threshold. Input that is not a number yields
// model.DefaultThreshold.
func ParseThreshold(input string) float64 {
	t, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || math.IsNaN(t) {
		return model.DefaultThreshold
	}
	return t
}

// ParseKeywordList splits text into trimmed, non-empty lines.
func ParseKeywordList(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	words := make([]string, 0, len(lines))
	for _, line := range lines {
		if w := strings.TrimSpace(line); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Target receives stored settings.
type Target interface {
	SetThreshold(t float64) error
	SetKeywords(words []string) bool
}

// Apply pushes the stored threshold and keyword list into t. A missing
// keyword list leaves t's keywords unchanged.
func (s *Store) Apply(ctx context.Context, t Target) error {
	threshold, err := s.Threshold(ctx)
	if err != nil {
		return err
	}
	if err := t.SetThreshold(threshold); err != nil {
		return err
	}
	words, err := s.Keywords(ctx)
	if err != nil {
		return err
	}
	if words != nil {
		t.SetKeywords(words)
	}
	return nil
}

var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries the formats SQLite may return; unknown formats
// yield the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
