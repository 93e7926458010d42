package config

import (
	"os"
	"strings"
)

// Config holds the process-level settings read from the environment.
// Launch parameters live in LaunchConfig.
type Config struct {
	ConfigDir string
	LogLevel  string
	LogFormat string
	Runtime   string
	TraceExec bool
	NoColor   bool

	logLevelSet bool
}

func LoadConfig() Config {
	return loadFromEnv()
}

func loadFromEnv() Config {
	level := strings.TrimSpace(os.Getenv("PROMPTER_LOG_LEVEL"))
	if level == "" {
		level = "warn"
	}
	return Config{
		ConfigDir: strings.TrimSpace(os.Getenv("PROMPTER_CONFIG_DIR")),
		LogLevel:  level,
		LogFormat: strings.ToLower(strings.TrimSpace(os.Getenv("PROMPTER_LOG_FORMAT"))),
		Runtime:   strings.TrimSpace(os.Getenv("PROMPTER_RUNTIME")),
		TraceExec: os.Getenv("PROMPTER_TRACE_EXEC") == "1",
		NoColor:   strings.TrimSpace(os.Getenv("NO_COLOR")) != "",

		logLevelSet: strings.TrimSpace(os.Getenv("PROMPTER_LOG_LEVEL")) != "",
	}
}

// LogLevelOr returns the level from the environment when one was given,
// otherwise fileLevel, otherwise the built-in default.
func (c Config) LogLevelOr(fileLevel string) string {
	if c.logLevelSet || strings.TrimSpace(fileLevel) == "" {
		return c.LogLevel
	}
	return strings.TrimSpace(fileLevel)
}
