package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/chronsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathsUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	assert.Equal(t, filepath.Join(home, "profiles", "work"), Dir("work"))
	assert.Equal(t, filepath.Join(home, "profiles", "work", "daemon.sock"), SocketPath("work"))
	assert.Equal(t, filepath.Join(home, "profiles", "work", "chronsync.db"), DBPath("work"))
	assert.Equal(t, filepath.Join(home, "profiles", "work", "config.toml"), ConfigPath("work"))
	assert.Equal(t, filepath.Join(home, "profiles", "work", "logs", "chronsyncd.log"), LogPath("work"))
	assert.Equal(t, filepath.Join(home, "config.toml"), GlobalConfigPath())
}

func TestBaseDirDefaultsToHome(t *testing.T) {
	t.Setenv(HomeEnv, "")
	assert.True(t, strings.HasSuffix(BaseDir(), ".chronsync"))
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	require.NoError(t, EnsureDir("main"))
	info, err := os.Stat(LogDir("main"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	assert.Equal(t, DefaultName, Resolve(""))

	require.NoError(t, config.Save(GlobalConfigPath(), &config.Global{DefaultProfile: "laptop"}))
	assert.Equal(t, "laptop", Resolve(""))
	assert.Equal(t, "flag", Resolve("flag"))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "default", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
