package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apiregress/packages/core/env"
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"gopkg.in/yaml.v3"
)

// Config represents the apiregress configuration. Unknown keys are ignored.
type Config struct {
	ExcelPath      string            `yaml:"excel_path,omitempty"`
	OpenAPI        *OpenAPIConfig    `yaml:"openapi,omitempty"`
	CollectionName string            `yaml:"collection_name,omitempty"`
	GatewayBaseURL string            `yaml:"gateway_base_url,omitempty"`
	OutputDir      string            `yaml:"output_dir,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"` // Default headers for all requests
	Runner         RunnerConfig      `yaml:"runner,omitempty"`
	Auth           *AuthConfig       `yaml:"auth,omitempty"`
	Email          *EmailConfig      `yaml:"email,omitempty"`
	Slack          *SlackConfig      `yaml:"slack,omitempty"`
	Teams          *TeamsConfig      `yaml:"teams,omitempty"`
	NotifyOn       string            `yaml:"notify_on,omitempty"`
	History        *HistoryConfig    `yaml:"history,omitempty"`
	Metrics        *MetricsConfig    `yaml:"metrics,omitempty"`
	Verbose        *bool             `yaml:"verbose,omitempty"`
	NoColor        *bool             `yaml:"no_color,omitempty"`
}

// OpenAPIConfig selects an API specification as the test-case source
type OpenAPIConfig struct {
	Spec        string   `yaml:"spec"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	ExcludeTags []string `yaml:"exclude_tags,omitempty"`
	Operations  []string `yaml:"operations,omitempty"` // operationId allow-list
}

// RunnerConfig controls the external collection runner
type RunnerConfig struct {
	Command    string   `yaml:"command,omitempty"`
	Args       []string `yaml:"args,omitempty"`
	Timeout    string   `yaml:"timeout,omitempty"`
	Retries    int      `yaml:"retries,omitempty"`
	RetryDelay string   `yaml:"retry_delay,omitempty"`
	KeepReport *bool    `yaml:"keep_report,omitempty"`
	Verbose    *bool    `yaml:"verbose,omitempty"`
}

// AuthConfig describes the pre-flight token request
type AuthConfig struct {
	BaseURL      string            `yaml:"base_url,omitempty"`
	Endpoint     string            `yaml:"endpoint"`
	Method       string            `yaml:"method,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Body         map[string]any    `yaml:"body,omitempty"`
	TokenPath    string            `yaml:"token_path,omitempty"`
	HeaderName   string            `yaml:"header_name,omitempty"`
	HeaderPrefix *string           `yaml:"header_prefix,omitempty"`
	Timeout      string            `yaml:"timeout,omitempty"`
	Verify       *bool             `yaml:"verify,omitempty"`
}

// EmailConfig configures the results email
type EmailConfig struct {
	Recipients []string   `yaml:"recipients,omitempty"`
	From       string     `yaml:"from,omitempty"`
	Subject    string     `yaml:"subject,omitempty"`
	SMTP       SMTPConfig `yaml:"smtp,omitempty"`
}

// SMTPConfig holds the mail server settings
type SMTPConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	UseTLS   *bool  `yaml:"use_tls,omitempty"`
	UseSSL   *bool  `yaml:"use_ssl,omitempty"`
}

// SlackConfig configures the Slack webhook notifier
type SlackConfig struct {
	Webhook string `yaml:"webhook"`
	Channel string `yaml:"channel,omitempty"`
}

// TeamsConfig configures the Microsoft Teams webhook notifier
type TeamsConfig struct {
	Webhook string `yaml:"webhook"`
}

// HistoryConfig enables the on-disk run history
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig exports run metrics in the Prometheus format
type MetricsConfig struct {
	Textfile    string `yaml:"textfile,omitempty"`    // node_exporter textfile collector target
	Pushgateway string `yaml:"pushgateway,omitempty"` // Pushgateway base URL
	Job         string `yaml:"job,omitempty"`
	Timeout     string `yaml:"timeout,omitempty"`
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// parseDuration parses s, falling back to def when s is empty
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetTimeout returns the runner timeout
func (r *RunnerConfig) GetTimeout() time.Duration {
	d, err := parseDuration(r.Timeout, DefaultRunnerTimeout)
	if err != nil {
		return DefaultRunnerTimeout
	}
	return d
}

// GetRetryDelay returns the delay between runner attempts
func (r *RunnerConfig) GetRetryDelay() time.Duration {
	d, err := parseDuration(r.RetryDelay, DefaultRetryDelay)
	if err != nil {
		return DefaultRetryDelay
	}
	return d
}

// GetKeepReport returns whether the runner report is kept, defaulting to false
func (r *RunnerConfig) GetKeepReport() bool {
	return getBool(r.KeepReport, false)
}

// GetVerbose returns whether runner output is streamed, defaulting to false
func (r *RunnerConfig) GetVerbose() bool {
	return getBool(r.Verbose, false)
}

// GetTimeout returns the auth call timeout
func (a *AuthConfig) GetTimeout() time.Duration {
	d, err := parseDuration(a.Timeout, DefaultAuthTimeout)
	if err != nil {
		return DefaultAuthTimeout
	}
	return d
}

// GetMethod returns the upper-cased auth method, defaulting to POST
func (a *AuthConfig) GetMethod() string {
	if a.Method == "" {
		return DefaultAuthMethod
	}
	return strings.ToUpper(a.Method)
}

// GetTokenPath returns the dot path of the token, defaulting to "token"
func (a *AuthConfig) GetTokenPath() string {
	if a.TokenPath == "" {
		return DefaultTokenPath
	}
	return a.TokenPath
}

// GetHeaderName returns the injected header name, defaulting to Authorization
func (a *AuthConfig) GetHeaderName() string {
	if a.HeaderName == "" {
		return DefaultHeaderName
	}
	return a.HeaderName
}

// GetHeaderPrefix returns the token prefix. An explicit empty prefix injects
// the bare token.
func (a *AuthConfig) GetHeaderPrefix() string {
	if a.HeaderPrefix == nil {
		return DefaultHeaderPrefix
	}
	return *a.HeaderPrefix
}

// GetVerify returns the TLS verification setting, defaulting to true
func (a *AuthConfig) GetVerify() bool {
	return getBool(a.Verify, true)
}

// GetPort returns the SMTP port, defaulting to 587
func (s *SMTPConfig) GetPort() int {
	if s.Port == 0 {
		return DefaultSMTPPort
	}
	return s.Port
}

// GetUseTLS returns the STARTTLS setting, defaulting to true
func (s *SMTPConfig) GetUseTLS() bool {
	return getBool(s.UseTLS, true)
}

// GetUseSSL returns the implicit TLS setting, defaulting to false
func (s *SMTPConfig) GetUseSSL() bool {
	return getBool(s.UseSSL, false)
}

// Sender returns the From address of the results email
func (e *EmailConfig) Sender() string {
	if e.From != "" {
		return e.From
	}
	return e.SMTP.Username
}

// GetJob returns the Pushgateway job name
func (m *MetricsConfig) GetJob() string {
	if m.Job == "" {
		return DefaultMetricsJob
	}
	return m.Job
}

// GetTimeout returns the Pushgateway request timeout
func (m *MetricsConfig) GetTimeout() time.Duration {
	d, err := parseDuration(m.Timeout, DefaultMetricsTimeout)
	if err != nil {
		return DefaultMetricsTimeout
	}
	return d
}

// AuthBaseURL returns the base URL of the token call
func (c *Config) AuthBaseURL() string {
	if c.Auth == nil {
		return ""
	}
	if c.Auth.BaseURL != "" {
		return c.Auth.BaseURL
	}
	return c.GatewayBaseURL
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"services_config.yaml",
	"services_config.yml",
	".apiregress.yaml",
	".apiregress.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file, expanding
// ${VAR} references from the process environment and a sibling .env file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if env.HasReferences(string(data)) {
		vars, err := env.LoadDotEnvIfExists(filepath.Join(filepath.Dir(path), env.DotEnvFile))
		if err != nil {
			return nil, err
		}
		expanded, missing := env.NewResolver(vars).Expand(string(data))
		if len(missing) > 0 {
			return nil, &model.ConfigError{
				Field:  "config",
				Reason: "unset variable(s): " + strings.Join(missing, ", "),
			}
		}
		data = []byte(expanded)
	}

	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return config, nil
}

// Validate checks that every activated feature has the keys it needs
func (c *Config) Validate() error {
	if c.ExcelPath == "" && (c.OpenAPI == nil || c.OpenAPI.Spec == "") {
		return &model.ConfigError{Field: "excel_path", Reason: "either excel_path or openapi.spec is required"}
	}
	if c.ExcelPath != "" && c.OpenAPI != nil && c.OpenAPI.Spec != "" {
		return &model.ConfigError{Field: "openapi.spec", Reason: "cannot be combined with excel_path"}
	}
	if _, err := parseDuration(c.Runner.Timeout, DefaultRunnerTimeout); err != nil {
		return &model.ConfigError{Field: "runner.timeout", Reason: err.Error()}
	}
	if _, err := parseDuration(c.Runner.RetryDelay, DefaultRetryDelay); err != nil {
		return &model.ConfigError{Field: "runner.retry_delay", Reason: err.Error()}
	}
	if c.Runner.Retries < 0 {
		return &model.ConfigError{Field: "runner.retries", Reason: "must not be negative"}
	}

	if c.Auth != nil {
		if c.Auth.Endpoint == "" {
			return &model.ConfigError{Field: "auth.endpoint", Reason: "required when auth is configured"}
		}
		if c.AuthBaseURL() == "" {
			return &model.ConfigError{Field: "auth.base_url", Reason: "auth.base_url or gateway_base_url is required"}
		}
		if _, err := parseDuration(c.Auth.Timeout, DefaultAuthTimeout); err != nil {
			return &model.ConfigError{Field: "auth.timeout", Reason: err.Error()}
		}
	}

	if c.Email != nil && len(c.Email.Recipients) > 0 {
		if c.Email.SMTP.Host == "" {
			return &model.ConfigError{Field: "email.smtp.host", Reason: "required when recipients are configured"}
		}
		if c.Email.Sender() == "" {
			return &model.ConfigError{Field: "email.from", Reason: "email.from or email.smtp.username is required"}
		}
	}

	if c.Slack != nil && c.Slack.Webhook == "" {
		return &model.ConfigError{Field: "slack.webhook", Reason: "required when slack is configured"}
	}

	if c.Teams != nil && c.Teams.Webhook == "" {
		return &model.ConfigError{Field: "teams.webhook", Reason: "required when teams is configured"}
	}

	if c.Metrics != nil {
		if c.Metrics.Textfile == "" && c.Metrics.Pushgateway == "" {
			return &model.ConfigError{Field: "metrics", Reason: "metrics.textfile or metrics.pushgateway is required"}
		}
		if _, err := parseDuration(c.Metrics.Timeout, DefaultMetricsTimeout); err != nil {
			return &model.ConfigError{Field: "metrics.timeout", Reason: err.Error()}
		}
	}

	switch c.NotifyOn {
	case "", "always", "failure", "success", "recovery":
	default:
		return &model.ConfigError{Field: "notify_on", Reason: fmt.Sprintf("unknown policy %q", c.NotifyOn)}
	}
	if c.NotifyOn == "recovery" && (c.History == nil || c.History.Path == "") {
		return &model.ConfigError{Field: "history.path", Reason: "required for notify_on: recovery"}
	}

	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.ExcelPath != "" {
		result.ExcelPath = other.ExcelPath
		result.OpenAPI = nil
	}
	if other.OpenAPI != nil && other.OpenAPI.Spec != "" {
		result.OpenAPI = other.OpenAPI
		result.ExcelPath = ""
	}
	if other.CollectionName != "" {
		result.CollectionName = other.CollectionName
	}
	if other.GatewayBaseURL != "" {
		result.GatewayBaseURL = other.GatewayBaseURL
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.Runner.Command != "" {
		result.Runner.Command = other.Runner.Command
	}
	if other.Runner.Timeout != "" {
		result.Runner.Timeout = other.Runner.Timeout
	}
	if other.Runner.Retries > 0 {
		result.Runner.Retries = other.Runner.Retries
	}
	if other.NotifyOn != "" {
		result.NotifyOn = other.NotifyOn
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	// Merge headers
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(c.Headers)+len(other.Headers))
		for k, v := range c.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
