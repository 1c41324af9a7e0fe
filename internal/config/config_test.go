package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.UnmountAttempts)
	assert.Equal(t, "500ms", cfg.UnmountBackoff)
	assert.Equal(t, "/boot", cfg.BootPath)
	assert.Empty(t, cfg.DefaultUser)
	assert.Equal(t, 500*time.Millisecond, cfg.UnmountBackoffDuration())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.UnmountAttempts)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `unmount_attempts: 8
unmount_backoff: 2s
default_user: pi
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.UnmountAttempts)
	assert.Equal(t, 2*time.Second, cfg.UnmountBackoffDuration())
	assert.Equal(t, "pi", cfg.DefaultUser)
	// untouched fields keep their defaults
	assert.Equal(t, "/boot", cfg.BootPath)
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero attempts", "unmount_attempts: 0\n"},
		{"bad backoff", "unmount_backoff: soon\n"},
		{"relative boot path", "boot_path: boot\n"},
		{"not yaml", "{{{\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))

			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}
