package config

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// RunnerConfig is the external runner command line. The task id, --input
// and --save are appended per invocation.
type RunnerConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// S3Config selects an S3-compatible bucket for artifacts.
type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// ArtifactConfig selects the artifact store backend.
type ArtifactConfig struct {
	Backend string   `json:"backend"` // "disk" or "s3"
	S3      S3Config `json:"s3"`
}

// Config is the top-level configuration.
type Config struct {
	EcosystemPath string         `json:"ecosystem_path"`
	Addr          string         `json:"addr"`
	HistoryPath   string         `json:"history_path,omitempty"` // empty: <ecosystem>/.seqgui/history.db
	Log           LogConfig      `json:"log"`
	Runner        RunnerConfig   `json:"runner"`
	Artifacts     ArtifactConfig `json:"artifacts"`
}
