package config

// Artifact backends.
const (
	BackendDisk = "disk"
	BackendS3   = "s3"
)

// DefaultPort is the port the server listens on when none is configured.
const DefaultPort = "3001"

// DefaultConfig returns the configuration used when nothing overrides it:
// the current directory as ecosystem, port 3001, the npx runner and the
// disk artifact backend.
func DefaultConfig() *Config {
	return &Config{
		EcosystemPath: ".",
		Addr:          ":" + DefaultPort,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Runner: RunnerConfig{
			Command: "npx",
			Args:    []string{"sequential-ecosystem", "run"},
		},
		Artifacts: ArtifactConfig{
			Backend: BackendDisk,
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "sequential-artifacts",
				UseSSL: true,
			},
		},
	}
}
