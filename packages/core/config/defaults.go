package config

import "time"

const (
	DefaultCollectionName = "API Tests"
	DefaultRunnerCommand  = "newman"
	DefaultRunnerTimeout  = 10 * time.Minute
	DefaultRetryDelay     = 5 * time.Second
	DefaultAuthTimeout    = 30 * time.Second
	DefaultAuthMethod     = "POST"
	DefaultTokenPath      = "token"
	DefaultHeaderName     = "Authorization"
	DefaultHeaderPrefix   = "Bearer "
	DefaultSMTPPort       = 587
	DefaultNotifyOn       = "always"
	DefaultMetricsJob     = "apiregress"
	DefaultMetricsTimeout = 10 * time.Second
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		CollectionName: DefaultCollectionName,
		OutputDir:      ".",
		Runner: RunnerConfig{
			Command: DefaultRunnerCommand,
			Timeout: DefaultRunnerTimeout.String(),
		},
		NotifyOn: DefaultNotifyOn,
	}
}
