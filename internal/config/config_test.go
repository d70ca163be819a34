package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a configuration that passes validation.
func validConfig() *Config {
	return &Config{
		App: AppConfig{
			Environment: "development",
			WorkingDir:  "/srv/harmonia",
		},
		Logger: LoggerConfig{Level: "info"},
		Server: ServerConfig{Port: "4533"},
		Cache: CacheConfig{
			Enabled:    true,
			Root:       "/srv/harmonia/hls_segments",
			MaxEntries: 100,
			MaxAge:     time.Hour,
		},
		Concurrency: ConcurrencyConfig{MaxJobs: 4},
		Readiness: ReadinessConfig{
			MinSegments: 2,
			Timeout:     30 * time.Second,
			Poll:        200 * time.Millisecond,
			Fallback:    2 * time.Second,
		},
		Job: JobConfig{Timeout: 10 * time.Minute},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Environments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Bounds(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.MaxEntries = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Concurrency.MaxJobs = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Readiness.Poll = time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Job.Timeout = time.Second
	assert.Error(t, cfg.Validate())
}

func TestExpandPaths_Defaults(t *testing.T) {
	cfg := validConfig()
	cfg.App.WorkingDir = t.TempDir()
	cfg.Cache.Root = ""

	require.NoError(t, cfg.expandPaths())
	assert.Equal(t, filepath.Join(cfg.App.WorkingDir, "hls_segments"), cfg.Cache.Root)
}

func TestExpandPath(t *testing.T) {
	got, err := expandPath("", "/fallback")
	require.NoError(t, err)
	assert.Equal(t, "/fallback", got)

	got, err = expandPath("/already/abs/../abs", "")
	require.NoError(t, err)
	assert.Equal(t, "/already/abs", got)
}

func TestGetConfigValue(t *testing.T) {
	t.Setenv("HARMONIA_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "HARMONIA_TEST_KEY", "fallback"))
	assert.Equal(t, "from-env", getConfigValue("", "HARMONIA_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", getConfigValue("", "HARMONIA_TEST_MISSING", "fallback"))
}

func TestGetBoolConfigValue(t *testing.T) {
	assert.True(t, getBoolConfigValue("true", "UNSET_KEY", false))
	assert.True(t, getBoolConfigValue("1", "UNSET_KEY", false))
	assert.True(t, getBoolConfigValue("YES", "UNSET_KEY", false))
	assert.False(t, getBoolConfigValue("no", "UNSET_KEY", true))
	assert.True(t, getBoolConfigValue("", "UNSET_KEY", true))
}

func TestGetIntConfigValue(t *testing.T) {
	assert.Equal(t, 42, getIntConfigValue("42", "UNSET_KEY", 7))
	assert.Equal(t, 7, getIntConfigValue("", "UNSET_KEY", 7))
	assert.Equal(t, 7, getIntConfigValue("not-a-number", "UNSET_KEY", 7))
}

func TestParseDurationValue(t *testing.T) {
	d, err := parseDurationValue("90s", "UNSET_KEY", "60m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = parseDurationValue("", "UNSET_KEY", "60m")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	_, err = parseDurationValue("soon", "UNSET_KEY", "60m")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"# comment\n\nHARMONIA_ENVFILE_A=hello\nHARMONIA_ENVFILE_B=\"quoted\"\n",
	), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("HARMONIA_ENVFILE_A")
		os.Unsetenv("HARMONIA_ENVFILE_B")
	})

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "hello", os.Getenv("HARMONIA_ENVFILE_A"))
	assert.Equal(t, "quoted", os.Getenv("HARMONIA_ENVFILE_B"))
}

func TestLoadEnvFile_EnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HARMONIA_ENVFILE_C=file\n"), 0o644))

	t.Setenv("HARMONIA_ENVFILE_C", "process")
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "process", os.Getenv("HARMONIA_ENVFILE_C"))
}
