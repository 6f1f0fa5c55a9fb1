// Package store persists refinements, usage events and profiles in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vochat/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates the data directory if needed, opens the database in WAL mode
// and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; transactions queue on the pool instead of failing busy.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteDSN builds a file URI for path with the connection pragmas. The path
// is escaped so '?' and '#' stay part of the file name.
func sqliteDSN(path string) string {
	pragmas := url.Values{"_pragma": {
		"journal_mode(WAL)",
		"busy_timeout(5000)",
		"foreign_keys(ON)",
	}}
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: pragmas.Encode(),
	}
	return u.String()
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS refinements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id TEXT NOT NULL,
    client_session_id TEXT NOT NULL,
    status TEXT NOT NULL,
    input_text TEXT NOT NULL,
    output_text TEXT NOT NULL DEFAULT '',
    profile_id TEXT NOT NULL DEFAULT '',
    word_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    UNIQUE(account_id, client_session_id)
);
CREATE TABLE IF NOT EXISTS usage_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    meta TEXT
);
CREATE INDEX IF NOT EXISTS idx_usage_account_type_created ON usage_events(account_id, event_type, created_at);
CREATE TABLE IF NOT EXISTS profiles (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    app_key TEXT NOT NULL DEFAULT '',
    tone TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT '',
    formatting TEXT NOT NULL DEFAULT '{}',
    is_default INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_profiles_account_default ON profiles(account_id, is_default);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetRefinement returns the record for the key or ErrNotFound.
func (s *Store) GetRefinement(ctx context.Context, accountID, clientSessionID string) (domain.Refinement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT account_id, client_session_id, status, input_text, output_text, profile_id, word_count, created_at
		 FROM refinements WHERE account_id = ? AND client_session_id = ?`,
		accountID, clientSessionID)
	return scanRefinement(row)
}

// RecordRefinement stores a refined result and its usage event atomically.
// The insert is conditional on the (account, client session) key: when a
// record already exists nothing is written and won is false. Either way the
// stored record is returned, so duplicate callers all see the same output.
func (s *Store) RecordRefinement(ctx context.Context, ref domain.Refinement, usage domain.UsageEvent) (stored domain.Refinement, won bool, err error) {
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = s.clock()
	}
	if ref.Status == "" {
		ref.Status = domain.RefinementRefined
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = ref.CreatedAt
	}

	meta, err := json.Marshal(usage.Meta)
	if err != nil {
		return domain.Refinement{}, false, fmt.Errorf("encode usage meta: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Refinement{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO refinements(account_id, client_session_id, status, input_text, output_text, profile_id, word_count, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account_id, client_session_id) DO NOTHING`,
		ref.AccountID, ref.ClientSessionID, string(ref.Status), ref.InputText, ref.OutputText,
		ref.ProfileID, ref.WordCount, ref.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return domain.Refinement{}, false, fmt.Errorf("insert refinement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Refinement{}, false, err
	}
	won = affected == 1

	if won {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO usage_events(account_id, event_type, quantity, created_at, meta) VALUES(?, ?, ?, ?, ?)`,
			usage.AccountID, usage.EventType, usage.Quantity, usage.CreatedAt.UTC().UnixMilli(), string(meta))
		if err != nil {
			return domain.Refinement{}, false, fmt.Errorf("insert usage event: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx,
		`SELECT account_id, client_session_id, status, input_text, output_text, profile_id, word_count, created_at
		 FROM refinements WHERE account_id = ? AND client_session_id = ?`,
		ref.AccountID, ref.ClientSessionID)
	stored, err = scanRefinement(row)
	if err != nil {
		return domain.Refinement{}, false, fmt.Errorf("read back refinement: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.Refinement{}, false, err
	}
	return stored, won, nil
}

// SumUsage totals quantity for an account and event type since a point in time.
func (s *Store) SumUsage(ctx context.Context, accountID, eventType string, since time.Time) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(quantity) FROM usage_events WHERE account_id = ? AND event_type = ? AND created_at >= ?`,
		accountID, eventType, since.UTC().UnixMilli()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}
	return int(total.Int64), nil
}

// AppendUsage inserts a usage event that is not tied to a refinement, such
// as an issued transcription token.
func (s *Store) AppendUsage(ctx context.Context, usage domain.UsageEvent) error {
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = s.clock()
	}
	meta, err := json.Marshal(usage.Meta)
	if err != nil {
		return fmt.Errorf("encode usage meta: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO usage_events(account_id, event_type, quantity, created_at, meta) VALUES(?, ?, ?, ?, ?)`,
		usage.AccountID, usage.EventType, usage.Quantity, usage.CreatedAt.UTC().UnixMilli(), string(meta))
	return err
}

// GetProfile returns an account's profile by id or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, accountID, profileID string) (domain.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, app_key, tone, language, formatting, is_default
		 FROM profiles WHERE id = ? AND account_id = ?`, profileID, accountID)
	return scanProfile(row)
}

// DefaultProfile returns the account's default profile or ErrNotFound.
func (s *Store) DefaultProfile(ctx context.Context, accountID string) (domain.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, app_key, tone, language, formatting, is_default
		 FROM profiles WHERE account_id = ? AND is_default = 1 LIMIT 1`, accountID)
	return scanProfile(row)
}

// UpsertProfile writes a profile. Profiles are owned by the profile editor;
// this exists for seeding.
func (s *Store) UpsertProfile(ctx context.Context, p domain.Profile) error {
	formatting, err := json.Marshal(p.Formatting)
	if err != nil {
		return fmt.Errorf("encode formatting: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles(id, account_id, app_key, tone, language, formatting, is_default)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET account_id=excluded.account_id, app_key=excluded.app_key,
		   tone=excluded.tone, language=excluded.language, formatting=excluded.formatting,
		   is_default=excluded.is_default`,
		p.ID, p.AccountID, p.AppKey, p.Tone, p.Language, string(formatting), boolToInt(p.IsDefault))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefinement(row rowScanner) (domain.Refinement, error) {
	var (
		ref     domain.Refinement
		status  string
		created int64
	)
	err := row.Scan(&ref.AccountID, &ref.ClientSessionID, &status, &ref.InputText, &ref.OutputText,
		&ref.ProfileID, &ref.WordCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Refinement{}, ErrNotFound
	}
	if err != nil {
		return domain.Refinement{}, err
	}
	ref.Status = domain.RefinementStatus(status)
	ref.CreatedAt = time.UnixMilli(created).UTC()
	return ref, nil
}

func scanProfile(row rowScanner) (domain.Profile, error) {
	var (
		p          domain.Profile
		formatting string
		isDefault  int
	)
	err := row.Scan(&p.ID, &p.AccountID, &p.AppKey, &p.Tone, &p.Language, &formatting, &isDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}
	if formatting != "" {
		if err := json.Unmarshal([]byte(formatting), &p.Formatting); err != nil {
			return domain.Profile{}, fmt.Errorf("decode formatting: %w", err)
		}
	}
	p.IsDefault = isDefault == 1
	return p, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
