package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_people.up.sql": {Data: []byte(`CREATE TABLE people (id TEXT PRIMARY KEY) STRICT;`)},
		"20260102_000000_pets.up.sql":   {Data: []byte(`CREATE TABLE pets (id TEXT PRIMARY KEY, owner TEXT REFERENCES people(id)) STRICT;`)},
		"README.md":                     {Data: []byte("ignored")},
		"20260103_000000_rollback.down.sql": {Data: []byte("DROP TABLE pets;")},
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx, testMigrations()))

	for _, table := range []string{"people", "pets"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	count, err := db.AppliedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx, testMigrations()))
	require.NoError(t, db.Migrate(ctx, testMigrations()))

	count, err := db.AppliedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMigrate_FailureKeepsEarlierMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte(`CREATE TABLE ok_table (id TEXT) STRICT;`)},
		"20260102_000000_broken.up.sql": {Data: []byte(`CREATE TABLE broken (`)},
	}

	require.Error(t, db.Migrate(ctx, fsys))

	count, err := db.AppliedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260301_090000_auth_core.up.sql", "20260301_090000", "auth_core", true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true},
		{"20260301_090000_auth_core.down.sql", "", "", false},
		{"notes.txt", "", "", false},
		{"single.up.sql", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, tt.wantName, name)
		})
	}
}
