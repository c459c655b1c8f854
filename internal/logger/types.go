package logger

// Level represents a logging level.
type Level string

const (
	// DebugLevel logs everything, including per-request pacing decisions.
	DebugLevel Level = "debug"
	// InfoLevel logs normal operational messages.
	InfoLevel Level = "info"
	// WarnLevel logs soft failures (heartbeat errors, claim conflicts).
	WarnLevel Level = "warn"
	// ErrorLevel logs failures that affect job outcomes.
	ErrorLevel Level = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level to log.
	Level Level `yaml:"level"`
	// Development enables colored console output with short timestamps.
	Development bool `yaml:"development"`
	// Encoding is either "console" or "json".
	Encoding string `yaml:"encoding"`
	// OutputPaths lists output destinations (default stdout).
	OutputPaths []string `yaml:"output_paths"`
}
