package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.User.MaxUserNameLength = 16
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 16, loaded.User.MaxUserNameLength)
	require.NotNil(t, loaded.User.PasswordCheck)
	require.True(t, loaded.User.PasswordCheck.MatchString("Abcdefgh1!"))
}

func TestLoadRejectsBadPasswordRegex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.User.PasswordCheckRaw = "(unclosed"
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(path)
	require.Error(t, err)
}

func TestDefaultIsInternallyConsistent(t *testing.T) {
	cfg := Default()
	require.Greater(t, cfg.User.TokenExpireTime, int64(0))
	require.Greater(t, cfg.Database.PoolMaxOpen, 0)
	require.False(t, cfg.Email.Enable)
	require.False(t, cfg.S3.Enable)
}
