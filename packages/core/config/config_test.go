package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultsAndUnknownKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
excel_path: tests.xlsx
something_else: ignored
runner:
  timeout: 2m
`))
	require.NoError(t, err)

	assert.Equal(t, "tests.xlsx", cfg.ExcelPath)
	assert.Equal(t, DefaultCollectionName, cfg.CollectionName)
	assert.Equal(t, DefaultRunnerCommand, cfg.Runner.Command)
	assert.Equal(t, 2*time.Minute, cfg.Runner.GetTimeout())
	assert.Equal(t, DefaultRetryDelay, cfg.Runner.GetRetryDelay())
	assert.False(t, cfg.Runner.GetKeepReport())
	require.NoError(t, cfg.Validate())
}

func TestAuthConfig_Accessors(t *testing.T) {
	cfg, err := Parse([]byte(`
excel_path: tests.xlsx
gateway_base_url: https://gw.example.com
auth:
  endpoint: /login
  token_path: data.token
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Auth)

	assert.Equal(t, "https://gw.example.com", cfg.AuthBaseURL())
	assert.Equal(t, "POST", cfg.Auth.GetMethod())
	assert.Equal(t, "data.token", cfg.Auth.GetTokenPath())
	assert.Equal(t, "Authorization", cfg.Auth.GetHeaderName())
	assert.Equal(t, "Bearer ", cfg.Auth.GetHeaderPrefix())
	assert.True(t, cfg.Auth.GetVerify())
	assert.Equal(t, DefaultAuthTimeout, cfg.Auth.GetTimeout())

	cfg, err = Parse([]byte(`
excel_path: tests.xlsx
auth:
  base_url: https://auth.example.com
  endpoint: /token
  header_name: X-Api-Key
  header_prefix: ""
`))
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", cfg.AuthBaseURL())
	assert.Equal(t, "", cfg.Auth.GetHeaderPrefix())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"no source", `collection_name: x`, "excel_path"},
		{"two sources", "excel_path: a.xlsx\nopenapi:\n  spec: api.yaml", "openapi.spec"},
		{"bad timeout", "excel_path: a.xlsx\nrunner:\n  timeout: soon", "runner.timeout"},
		{"negative retries", "excel_path: a.xlsx\nrunner:\n  retries: -1", "runner.retries"},
		{"auth without endpoint", "excel_path: a.xlsx\ngateway_base_url: http://x\nauth:\n  method: POST", "auth.endpoint"},
		{"auth without base url", "excel_path: a.xlsx\nauth:\n  endpoint: /login", "auth.base_url"},
		{"email without host", "excel_path: a.xlsx\nemail:\n  recipients: [a@example.com]\n  from: b@example.com", "email.smtp.host"},
		{"slack without webhook", "excel_path: a.xlsx\nslack:\n  channel: '#qa'", "slack.webhook"},
		{"teams without webhook", "excel_path: a.xlsx\nteams: {}", "teams.webhook"},
		{"unknown policy", "excel_path: a.xlsx\nnotify_on: sometimes", "notify_on"},
		{"recovery without history", "excel_path: a.xlsx\nnotify_on: recovery", "history.path"},
		{"metrics without target", "excel_path: a.xlsx\nmetrics:\n  job: nightly", "metrics"},
		{"bad metrics timeout", "excel_path: a.xlsx\nmetrics:\n  textfile: out/apiregress.prom\n  timeout: later", "metrics.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)

			err = cfg.Validate()
			var cfgErr *model.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestMetricsConfig_Accessors(t *testing.T) {
	cfg, err := Parse([]byte("excel_path: a.xlsx\nmetrics:\n  pushgateway: http://pgw:9091\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultMetricsJob, cfg.Metrics.GetJob())
	assert.Equal(t, DefaultMetricsTimeout, cfg.Metrics.GetTimeout())

	cfg.Metrics.Job = "nightly"
	cfg.Metrics.Timeout = "3s"
	assert.Equal(t, "nightly", cfg.Metrics.GetJob())
	assert.Equal(t, 3*time.Second, cfg.Metrics.GetTimeout())
}

func TestFindAndLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	content := "excel_path: cases.xlsx\ncollection_name: Smoke\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "services_config.yaml"), []byte(content), 0644))

	cfg, err = FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "cases.xlsx", cfg.ExcelPath)
	assert.Equal(t, "Smoke", cfg.CollectionName)
}

func TestLoadConfig_ExpandsVariables(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APIREGRESS_TEST_WEBHOOK", "https://hooks.slack.com/services/T/B/X")

	content := `excel_path: cases.xlsx
email:
  recipients: [qa@example.com]
  smtp:
    host: smtp.example.com
    port: ${APIREGRESS_TEST_SMTP_PORT:-2525}
    password: ${APIREGRESS_TEST_SMTP_PASSWORD}
slack:
  webhook: ${APIREGRESS_TEST_WEBHOOK}
`
	path := filepath.Join(dir, "services_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APIREGRESS_TEST_SMTP_PASSWORD=hunter2\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Email.SMTP.Password)
	assert.Equal(t, 2525, cfg.Email.SMTP.Port)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", cfg.Slack.Webhook)
}

func TestLoadConfig_UnsetVariable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("excel_path: ${APIREGRESS_TEST_UNSET_PATH}\n"), 0644))

	_, err := LoadConfig(path)
	var cfgErr *model.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "APIREGRESS_TEST_UNSET_PATH")
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.ExcelPath = "a.xlsx"
	base.Headers = map[string]string{"X-A": "1"}

	merged := base.Merge(&Config{
		OpenAPI:  &OpenAPIConfig{Spec: "api.yaml"},
		Headers:  map[string]string{"X-B": "2"},
		Verbose:  BoolPtr(true),
		Runner:   RunnerConfig{Timeout: "30s"},
		NotifyOn: "failure",
	})

	assert.Empty(t, merged.ExcelPath)
	assert.Equal(t, "api.yaml", merged.OpenAPI.Spec)
	assert.Equal(t, map[string]string{"X-A": "1", "X-B": "2"}, merged.Headers)
	assert.True(t, merged.GetVerbose())
	assert.Equal(t, 30*time.Second, merged.Runner.GetTimeout())
	assert.Equal(t, "failure", merged.NotifyOn)
	assert.Equal(t, map[string]string{"X-A": "1"}, base.Headers)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services_config.yaml")
	cfg := DefaultConfig()
	cfg.ExcelPath = "cases.xlsx"
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "cases.xlsx", loaded.ExcelPath)
	assert.Equal(t, cfg.Runner.Timeout, loaded.Runner.Timeout)
}
