// Package db stores camera profiles (named intrinsics) and a log of
// detection sessions in SQLite.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/tagview/internal/tag"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationsFS returns the embedded migration files rooted at the
// migrations directory.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// ErrProfileNotFound is returned when a named profile does not exist.
var ErrProfileNotFound = errors.New("camera profile not found")

type DB struct {
	*sql.DB
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	return &DB{db}, nil
}

// NewDB opens the database and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Profile is a named set of camera intrinsics. Width and Height record the
// resolution the intrinsics were measured at; zero means unknown.
type Profile struct {
	Name      string    `json:"name"`
	Fx        float64   `json:"fx"`
	Fy        float64   `json:"fy"`
	Cx        float64   `json:"cx"`
	Cy        float64   `json:"cy"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the profile can be stored.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	for _, v := range []float64{p.Fx, p.Fy, p.Cx, p.Cy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("profile %q: intrinsics must be finite", p.Name)
		}
	}
	if p.Fx <= 0 || p.Fy <= 0 {
		return fmt.Errorf("profile %q: focal lengths must be positive", p.Name)
	}
	if p.Width < 0 || p.Height < 0 {
		return fmt.Errorf("profile %q: resolution must not be negative", p.Name)
	}
	return nil
}

// Intrinsics returns the profile's intrinsics scaled to a capture of
// width x height. Profiles without a recorded resolution are returned as is.
func (p Profile) Intrinsics(width, height int) tag.Intrinsics {
	intr := tag.Intrinsics{Fx: p.Fx, Fy: p.Fy, Cx: p.Cx, Cy: p.Cy}
	if p.Width <= 0 || p.Height <= 0 || width <= 0 || height <= 0 {
		return intr
	}
	sx := float64(width) / float64(p.Width)
	sy := float64(height) / float64(p.Height)
	return tag.Intrinsics{Fx: p.Fx * sx, Fy: p.Fy * sy, Cx: p.Cx * sx, Cy: p.Cy * sy}
}

// SaveProfile inserts or replaces a profile.
func (db *DB) SaveProfile(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := db.Exec(`
		INSERT INTO camera_profiles (name, fx, fy, cx, cy, width, height, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			fx = excluded.fx, fy = excluded.fy, cx = excluded.cx, cy = excluded.cy,
			width = excluded.width, height = excluded.height, notes = excluded.notes,
			updated_at = CURRENT_TIMESTAMP`,
		p.Name, p.Fx, p.Fy, p.Cx, p.Cy, p.Width, p.Height, p.Notes)
	if err != nil {
		return fmt.Errorf("failed to save profile %q: %w", p.Name, err)
	}
	return nil
}

const profileColumns = `name, fx, fy, cx, cy, width, height, notes, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (Profile, error) {
	var p Profile
	err := row.Scan(&p.Name, &p.Fx, &p.Fy, &p.Cx, &p.Cy, &p.Width, &p.Height, &p.Notes, &p.UpdatedAt)
	return p, err
}

// GetProfile returns the named profile or ErrProfileNotFound.
func (db *DB) GetProfile(name string) (Profile, error) {
	row := db.QueryRow(`SELECT `+profileColumns+` FROM camera_profiles WHERE name = ?`, name)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to load profile %q: %w", name, err)
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by name.
func (db *DB) ListProfiles() ([]Profile, error) {
	rows, err := db.Query(`SELECT ` + profileColumns + ` FROM camera_profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProfile removes the named profile.
func (db *DB) DeleteProfile(name string) error {
	res, err := db.Exec(`DELETE FROM camera_profiles WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return nil
}

// Session records one run of the detector.
type Session struct {
	ID        uuid.UUID `json:"session_id"`
	Profile   string    `json:"profile"`
	TagFamily string    `json:"tag_family"`
	Pose      bool      `json:"pose"`
	StartedAt time.Time `json:"started_at"`
}

// StartSession logs the start of a detection run and returns its ID.
func (db *DB) StartSession(profile, family string, pose bool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO sessions (session_id, profile, tag_family, pose) VALUES (?, ?, ?, ?)`,
		id.String(), profile, family, pose)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record session: %w", err)
	}
	return id, nil
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT session_id, profile, tag_family, pose, started_at
		FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var id string
		if err := rows.Scan(&id, &s.Profile, &s.TagFamily, &s.Pose, &s.StartedAt); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", id, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
