package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// GlobalPath returns ~/.seqgui/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".seqgui", "config.json"), nil
}

// ProjectPath returns .seqgui/config.json relative to the working directory.
func ProjectPath() string {
	return filepath.Join(".seqgui", "config.json")
}

// LoadDefault loads configuration from the conventional paths, then applies
// the environment. A .env file in the working directory is loaded first;
// variables already set in the process environment win over it.
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	cfg, err := Load(globalPath, ProjectPath())
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfigFile reads a JSON config file and overlays it onto base. Only
// keys present in the file change base; lists are replaced, not appended.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. getenv is usually
// os.Getenv; empty values are ignored.
//
//	ECOSYSTEM_PATH, PORT, SEQGUI_ADDR, SEQGUI_HISTORY_PATH,
//	SEQGUI_LOG_LEVEL, SEQGUI_LOG_FORMAT, RUNNER_COMMAND,
//	ARTIFACT_BACKEND, ARTIFACT_S3_ENDPOINT, ARTIFACT_S3_REGION,
//	ARTIFACT_S3_ACCESS_KEY, ARTIFACT_S3_SECRET_KEY, ARTIFACT_S3_BUCKET,
//	ARTIFACT_S3_USE_SSL
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	env := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	if v := env("ECOSYSTEM_PATH"); v != "" {
		cfg.EcosystemPath = v
	}
	if v := env("PORT"); v != "" {
		if strings.HasPrefix(v, ":") {
			cfg.Addr = v
		} else {
			cfg.Addr = ":" + v
		}
	}
	if v := env("SEQGUI_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := env("SEQGUI_HISTORY_PATH"); v != "" {
		cfg.HistoryPath = v
	}
	if v := env("SEQGUI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("SEQGUI_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := env("RUNNER_COMMAND"); v != "" {
		fields := strings.Fields(v)
		cfg.Runner = RunnerConfig{Command: fields[0], Args: fields[1:]}
	}

	if v := env("ARTIFACT_BACKEND"); v != "" {
		cfg.Artifacts.Backend = strings.ToLower(v)
	}
	s3 := &cfg.Artifacts.S3
	if v := env("ARTIFACT_S3_ENDPOINT"); v != "" {
		s3.Endpoint = v
	}
	if v := env("ARTIFACT_S3_REGION"); v != "" {
		s3.Region = v
	}
	if v := env("ARTIFACT_S3_ACCESS_KEY"); v != "" {
		s3.AccessKey = v
	}
	if v := env("ARTIFACT_S3_SECRET_KEY"); v != "" {
		s3.SecretKey = v
	}
	if v := env("ARTIFACT_S3_BUCKET"); v != "" {
		s3.Bucket = v
	}
	if v := env("ARTIFACT_S3_USE_SSL"); v != "" {
		useSSL, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing ARTIFACT_S3_USE_SSL: %w", err)
		}
		s3.UseSSL = useSSL
	}
	return nil
}

// Validate checks values that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.EcosystemPath) == "" {
		return fmt.Errorf("ecosystem_path is required")
	}
	if strings.TrimSpace(c.Runner.Command) == "" {
		return fmt.Errorf("runner.command is required")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Artifacts.Backend {
	case BackendDisk:
	case BackendS3:
		if c.Artifacts.S3.Endpoint == "" || c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3 needs endpoint and bucket")
		}
	default:
		return fmt.Errorf("artifacts.backend must be %q or %q, got %q", BackendDisk, BackendS3, c.Artifacts.Backend)
	}
	return nil
}

// ResolvedHistoryPath returns HistoryPath, defaulting to a database inside
// the ecosystem directory.
func (c *Config) ResolvedHistoryPath() string {
	if c.HistoryPath != "" {
		return c.HistoryPath
	}
	return filepath.Join(c.EcosystemPath, ".seqgui", "history.db")
}
