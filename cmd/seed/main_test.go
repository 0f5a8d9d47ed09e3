package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/storage"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFailsWithoutSecret(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("RELAY_AUTH_SECRET", "")
	t.Setenv("RELAY_DATABASE_DSN", filepath.Join(t.TempDir(), "seed.db"))

	assert.Error(t, run("demo", 0))
}

func TestRunSeedsRoomAndUsers(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "seed.db")
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("RELAY_AUTH_SECRET", "s3cret")
	t.Setenv("RELAY_DATABASE_DSN", dsn)

	require.NoError(t, run("demo", time.Hour))

	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })
	dir := storage.NewDirectory(db)

	ctx := context.Background()
	r, err := dir.FindRoom(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, r.Joinable(time.Now()))
	require.NotNil(t, r.ExpiresAt)

	u, err := dir.FindUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", u.FirstName)
}
