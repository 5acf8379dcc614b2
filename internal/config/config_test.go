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
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("LOCKER_AUTH_SECRET", "explicit-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "explicit-secret", cfg.Auth.Secret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"mp3", "wav", "ogg"}, cfg.Upload.Extensions)
	assert.Equal(t, "mp3", cfg.Downloader.AudioFormat)
	assert.Equal(t, "192K", cfg.Downloader.AudioQuality)
	assert.Equal(t, "data/uploads", cfg.Storage.Dir)

	_, err = os.Stat(filepath.Join(dir, "data", "secret_key"))
	assert.True(t, os.IsNotExist(err), "explicit secret must not be persisted")
}

func TestLoad_SecretFileFallbackIsReused(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("LOCKER_AUTH_SECRETFILE", filepath.Join(dir, "keys", "secret"))

	first, err := Load()
	require.NoError(t, err)
	require.Len(t, first.Auth.Secret, 64)

	second, err := Load()
	require.NoError(t, err)
	assert.Equal(t, first.Auth.Secret, second.Auth.Secret)

	info, err := os.Stat(filepath.Join(dir, "keys", "secret"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_DotEnvAndLists(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	env := "LOCKER_AUTH_SECRET=from-dotenv\nLOCKER_UPLOAD_EXTENSIONS=mp3, flac\nLOCKER_AUTH_TOKENTTL=2h\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644))
	t.Cleanup(func() {
		for _, k := range []string{"LOCKER_AUTH_SECRET", "LOCKER_UPLOAD_EXTENSIONS", "LOCKER_AUTH_TOKENTTL"} {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.Secret)
	assert.Equal(t, []string{"mp3", "flac"}, cfg.Upload.Extensions)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_RejectsNonPositiveTTL(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LOCKER_AUTH_SECRET", "s")
	t.Setenv("LOCKER_AUTH_TOKENTTL", "0s")

	_, err := Load()
	assert.Error(t, err)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
