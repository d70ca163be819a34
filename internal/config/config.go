// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the application configuration.
type Config struct {
	App         AppConfig
	Logger      LoggerConfig
	Server      ServerConfig
	Library     LibraryConfig
	Cache       CacheConfig
	Transcoder  TranscoderConfig
	Concurrency ConcurrencyConfig
	Readiness   ReadinessConfig
	Job         JobConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"required,oneof=development staging production"`
	// WorkingDir is the parent for the cache and index (default: process directory).
	WorkingDir string `validate:"required"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"required,oneof=debug info warn error"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `validate:"required"`
	PathBase     string        // Optional URL prefix when served behind a proxy (e.g. "/music")
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 0 - streaming responses)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// LibraryConfig holds music library configuration.
type LibraryConfig struct {
	// MusicPath is the root of the music collection to index.
	MusicPath string
}

// CacheConfig holds HLS segment cache configuration.
type CacheConfig struct {
	// Enabled allows disabling the segment cache entirely; every request re-spawns (default: true).
	Enabled bool
	// Root is the directory containing per-stream work directories (default: {workingDir}/hls_segments).
	Root string `validate:"required"`
	// MaxEntries caps the FIFO registry (default: 100).
	MaxEntries int `validate:"min=1"`
	// MaxAge is the per-entry TTL (default: 60m).
	MaxAge time.Duration `validate:"min=1m"`
}

// TranscoderConfig holds the external transcoder configuration.
type TranscoderConfig struct {
	// Path to the ffmpeg-compatible binary (default: auto-detect on PATH).
	Path string
}

// ConcurrencyConfig bounds simultaneous transcodes.
type ConcurrencyConfig struct {
	// MaxJobs is the server-wide cap on running transcoder processes (default: 4).
	MaxJobs int `validate:"min=1"`
}

// ReadinessConfig tunes first-response latency detection.
type ReadinessConfig struct {
	// MinSegments is how many segments must exist before the playlist is served (default: 2).
	MinSegments int `validate:"min=1"`
	// Timeout bounds the whole wait (default: 30s).
	Timeout time.Duration `validate:"min=1s"`
	// Poll is the probe interval (default: 200ms).
	Poll time.Duration `validate:"min=10ms"`
	// Fallback accepts a single segment after this delay (default: 2s).
	Fallback time.Duration `validate:"min=100ms"`
}

// JobConfig bounds individual transcoder processes.
type JobConfig struct {
	// Timeout is the hard per-process deadline (default: 10m).
	Timeout time.Duration `validate:"min=1m"`
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	workingDir := flag.String("working-dir", "", "Parent directory for cache and index")
	musicPath := flag.String("music-path", "", "Path to the music library")

	serverPort := flag.String("port", "", "Server port (default: 4533)")
	pathBase := flag.String("path-base", "", "URL prefix when behind a reverse proxy")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	cacheEnabled := flag.String("cache-enabled", "", "Enable the HLS segment cache (default: true)")
	cacheRoot := flag.String("cache-root", "", "Directory for HLS work directories")
	cacheMaxEntries := flag.String("cache-max-entries", "", "FIFO cache cap (default: 100)")
	cacheMaxAge := flag.String("cache-max-age", "", "Cache entry TTL (default: 60m)")

	transcoderPath := flag.String("transcoder-path", "", "Path to ffmpeg-compatible binary (default: auto-detect)")
	maxJobs := flag.String("max-jobs", "", "Max concurrent transcoder processes (default: 4)")

	minSegments := flag.String("readiness-min-segments", "", "Segments required before first response (default: 2)")
	readinessTimeout := flag.String("readiness-timeout", "", "Readiness wait cap (default: 30s)")
	readinessPoll := flag.String("readiness-poll", "", "Readiness poll interval (default: 200ms)")
	readinessFallback := flag.String("readiness-fallback", "", "Single-segment fallback delay (default: 2s)")

	jobTimeout := flag.String("job-timeout", "", "Per-transcode hard deadline (default: 10m)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			WorkingDir:  getConfigValue(*workingDir, "WORKING_DIR", ""),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:     getConfigValue(*serverPort, "SERVER_PORT", "4533"),
			PathBase: getConfigValue(*pathBase, "PATH_BASE", ""),
		},
		Library: LibraryConfig{
			MusicPath: getConfigValue(*musicPath, "MUSIC_PATH", ""),
		},
		Cache: CacheConfig{
			Enabled:    getBoolConfigValue(*cacheEnabled, "CACHE_ENABLED", true),
			Root:       getConfigValue(*cacheRoot, "CACHE_ROOT", ""),
			MaxEntries: getIntConfigValue(*cacheMaxEntries, "CACHE_MAX_ENTRIES", 100),
		},
		Transcoder: TranscoderConfig{
			Path: getConfigValue(*transcoderPath, "TRANSCODER_PATH", ""),
		},
		Concurrency: ConcurrencyConfig{
			MaxJobs: getIntConfigValue(*maxJobs, "MAX_CONCURRENT_JOBS", 4),
		},
		Readiness: ReadinessConfig{
			MinSegments: getIntConfigValue(*minSegments, "READINESS_MIN_SEGMENTS", 2),
		},
	}

	// Parse durations.
	var err error
	if cfg.Cache.MaxAge, err = parseDurationValue(*cacheMaxAge, "CACHE_MAX_AGE", "60m"); err != nil {
		return nil, err
	}
	if cfg.Readiness.Timeout, err = parseDurationValue(*readinessTimeout, "READINESS_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.Readiness.Poll, err = parseDurationValue(*readinessPoll, "READINESS_POLL", "200ms"); err != nil {
		return nil, err
	}
	if cfg.Readiness.Fallback, err = parseDurationValue(*readinessFallback, "READINESS_FALLBACK", "2s"); err != nil {
		return nil, err
	}
	if cfg.Job.Timeout, err = parseDurationValue(*jobTimeout, "JOB_TIMEOUT", "10m"); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	// Playlist generation can block up to the readiness timeout, and segment
	// responses stream; no write deadline.
	cfg.Server.WriteTimeout = 0

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%s failed %q validation", first.Namespace(), first.Tag())
		}
		return err
	}
	return nil
}

// expandPaths resolves the working directory, cache root, and music path.
func (c *Config) expandPaths() error {
	if c.App.WorkingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		c.App.WorkingDir = wd
	}

	var err error
	if c.App.WorkingDir, err = expandPath(c.App.WorkingDir, ""); err != nil {
		return fmt.Errorf("invalid working dir: %w", err)
	}

	defaultCacheRoot := filepath.Join(c.App.WorkingDir, "hls_segments")
	if c.Cache.Root, err = expandPath(c.Cache.Root, defaultCacheRoot); err != nil {
		return fmt.Errorf("invalid cache root: %w", err)
	}

	if c.Library.MusicPath != "" {
		if c.Library.MusicPath, err = expandPath(c.Library.MusicPath, ""); err != nil {
			return fmt.Errorf("invalid music path: %w", err)
		}
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue resolves a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(strings.ReplaceAll(envKey, "_", " ")), strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
