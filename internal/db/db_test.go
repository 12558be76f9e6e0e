package db

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tagview/internal/monitoring"
	"github.com/banshee-data/tagview/internal/tag"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "tagview.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_SeedsDefaultProfile(t *testing.T) {
	db := newTestDB(t)

	p, err := db.GetProfile("default")
	require.NoError(t, err)
	assert.Equal(t, 2800.0, p.Fx)
	assert.Equal(t, 2800.0, p.Fy)
	assert.Equal(t, 648.0, p.Cx)
	assert.Equal(t, 486.0, p.Cy)
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagview.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveProfile(Profile{Name: "bench", Fx: 900, Fy: 900, Cx: 400, Cy: 300}))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.GetProfile("bench")
	assert.NoError(t, err)
}

func TestProfiles_CRUD(t *testing.T) {
	db := newTestDB(t)

	bench := Profile{Name: "bench", Fx: 900, Fy: 905, Cx: 400, Cy: 300, Width: 800, Height: 600, Notes: "checkerboard"}
	require.NoError(t, db.SaveProfile(bench))

	got, err := db.GetProfile("bench")
	require.NoError(t, err)
	got.UpdatedAt = bench.UpdatedAt
	assert.Equal(t, bench, got)

	bench.Fx = 910
	require.NoError(t, db.SaveProfile(bench))
	got, err = db.GetProfile("bench")
	require.NoError(t, err)
	assert.Equal(t, 910.0, got.Fx)

	list, err := db.ListProfiles()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bench", list[0].Name)
	assert.Equal(t, "default", list[1].Name)

	require.NoError(t, db.DeleteProfile("bench"))
	_, err = db.GetProfile("bench")
	assert.True(t, errors.Is(err, ErrProfileNotFound))
	assert.ErrorIs(t, db.DeleteProfile("bench"), ErrProfileNotFound)
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr string
	}{
		{"ok", Profile{Name: "a", Fx: 1, Fy: 1}, ""},
		{"no name", Profile{Fx: 1, Fy: 1}, "name is required"},
		{"zero focal", Profile{Name: "a", Fx: 0, Fy: 1}, "focal lengths"},
		{"negative size", Profile{Name: "a", Fx: 1, Fy: 1, Width: -1}, "resolution"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProfile_Intrinsics(t *testing.T) {
	p := Profile{Fx: 1000, Fy: 1000, Cx: 640, Cy: 480, Width: 1280, Height: 960}
	assert.Equal(t, tag.Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}, p.Intrinsics(640, 480))
	assert.Equal(t, tag.Intrinsics{Fx: 1000, Fy: 1000, Cx: 640, Cy: 480}, p.Intrinsics(0, 0))

	unsized := Profile{Fx: 10, Fy: 20, Cx: 3, Cy: 4}
	assert.Equal(t, tag.Intrinsics{Fx: 10, Fy: 20, Cx: 3, Cy: 4}, unsized.Intrinsics(640, 480))
}

func TestSessions(t *testing.T) {
	db := newTestDB(t)

	first, err := db.StartSession("default", "tag36h11", true)
	require.NoError(t, err)
	second, err := db.StartSession("bench", "tag25h9", false)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first)

	got, err := db.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second, got[0].ID)
	assert.Equal(t, "tag25h9", got[0].TagFamily)
	assert.False(t, got[0].Pose)
	assert.Equal(t, first, got[1].ID)
	assert.True(t, got[1].Pose)
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)
	migrations := MigrationsFS()

	latest, err := LatestVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	v, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, latest, v)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateDown(migrations))
	v, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	_, err = db.RecentSessions(1)
	assert.Error(t, err)

	require.NoError(t, db.MigrateTo(migrations, 2))
	_, err = db.RecentSessions(1)
	assert.NoError(t, err)

	// Up again is a no-op.
	assert.NoError(t, db.MigrateUp(migrations))
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	assert.Equal(t, 0, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	assert.Equal(t, 0, RunMigrateCommand([]string{"status"}, path, &out))
	assert.Contains(t, out.String(), "Latest version: 2")

	out.Reset()
	assert.Equal(t, 0, RunMigrateCommand([]string{"version", "1"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	assert.Equal(t, 1, RunMigrateCommand([]string{"force"}, path, &out))
	assert.Equal(t, 1, RunMigrateCommand([]string{"version", "x"}, path, &out))
	assert.Equal(t, 1, RunMigrateCommand([]string{"sideways"}, path, &out))
	assert.True(t, strings.Contains(out.String(), "Usage: tagview migrate"))
	assert.Equal(t, 1, RunMigrateCommand(nil, path, &out))
	assert.Equal(t, 0, RunMigrateCommand([]string{"help"}, path, &out))
}
