package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "")

	c := Load()

	assert.Equal(t, "8080", c.ServerPort)
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 30*time.Second, c.AccessCacheTTL)
	assert.Equal(t, time.Hour, c.TokenTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenTTL)
	assert.Equal(t, 200*time.Millisecond, c.WatchStability)
	assert.Equal(t, 256, c.SendQueue)
	assert.Equal(t, int64(1<<20), c.Storage.Threshold)
	assert.Len(t, c.JWTSecret, 64)
	assert.False(t, c.Storage.Enabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("WATCH_STABILITY", "50ms")
	t.Setenv("R2_ACCOUNT_ID", "acct")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")
	t.Setenv("R2_BUCKET_NAME", "files")

	c := Load()

	assert.Equal(t, "9000", c.ServerPort)
	assert.Equal(t, "s3cret", c.JWTSecret)
	assert.Equal(t, 50*time.Millisecond, c.WatchStability)
	assert.Equal(t, "files", c.Storage.Bucket)
	assert.True(t, c.Storage.Enabled())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_NAME=from_dotenv\n"), 0o644))
	t.Chdir(dir)
	t.Setenv("DB_NAME", "")
	os.Unsetenv("DB_NAME")

	c := Load()

	assert.Equal(t, "from_dotenv", c.DBName)
	os.Unsetenv("DB_NAME")
}
