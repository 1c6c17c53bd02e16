// Package prefs persists operator-facing state that has no relation to
// device sync: UI layout blobs and remembered device profiles. The sync
// engine never reads or writes this store.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// SetLayout stores one opaque layout blob under key.
func (s *Store) SetLayout(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("prefs: layout key required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO layout_prefs(key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value=excluded.value,
	updated_at=excluded.updated_at
`, key, value, ts(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert layout pref: %w", err)
	}
	return nil
}

// Layout fetches the layout blob for key, or ErrNotFound.
func (s *Store) Layout(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM layout_prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query layout pref: %w", err)
	}
	return value, nil
}

// DeviceProfile remembers a device the operator connected to.
type DeviceProfile struct {
	Name       string
	BaseURL    string
	LastUsedAt time.Time
}

// SaveProfile upserts a profile and stamps its last use.
func (s *Store) SaveProfile(ctx context.Context, profile DeviceProfile) error {
	if profile.Name == "" {
		return errors.New("prefs: profile name required")
	}
	if profile.BaseURL == "" {
		return errors.New("prefs: profile base url required")
	}
	if profile.LastUsedAt.IsZero() {
		profile.LastUsedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO device_profiles(name, base_url, last_used_at)
VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	base_url=excluded.base_url,
	last_used_at=excluded.last_used_at
`, profile.Name, profile.BaseURL, ts(profile.LastUsedAt))
	if err != nil {
		return fmt.Errorf("upsert device profile: %w", err)
	}
	return nil
}

// Profile fetches one profile by name, or ErrNotFound.
func (s *Store) Profile(ctx context.Context, name string) (DeviceProfile, error) {
	var profile DeviceProfile
	var lastUsed string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, base_url, last_used_at FROM device_profiles WHERE name = ?`, name).
		Scan(&profile.Name, &profile.BaseURL, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceProfile{}, ErrNotFound
	}
	if err != nil {
		return DeviceProfile{}, fmt.Errorf("query device profile: %w", err)
	}
	profile.LastUsedAt = parseTS(lastUsed)
	return profile, nil
}

// Profiles lists profiles, most recently used first.
func (s *Store) Profiles(ctx context.Context) ([]DeviceProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, base_url, last_used_at FROM device_profiles ORDER BY last_used_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("query device profiles: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var profiles []DeviceProfile
	for rows.Next() {
		var profile DeviceProfile
		var lastUsed string
		if err := rows.Scan(&profile.Name, &profile.BaseURL, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan device profile: %w", err)
		}
		profile.LastUsedAt = parseTS(lastUsed)
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device profiles: %w", err)
	}
	return profiles, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
