package cmd

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
)

// Flags shared by every command
var (
	configFlag    string
	excelFlag     string
	openapiFlag   string
	outputDirFlag string
	verboseFlag   bool
	noColorFlag   bool
)

// loadConfig reads the config file and applies the command line overrides.
// extra may adjust the merged overrides before validation.
func loadConfig(extra func(o *config.Config)) (*config.Config, error) {
	if excelFlag != "" && openapiFlag != "" {
		return nil, &usageError{err: fmt.Errorf("--excel and --openapi cannot be combined")}
	}

	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &model.ConfigError{Field: "config", Reason: err.Error()}
	}

	overrides := &config.Config{
		ExcelPath: excelFlag,
		OutputDir: outputDirFlag,
	}
	if openapiFlag != "" {
		oa := config.OpenAPIConfig{}
		if cfg.OpenAPI != nil {
			oa = *cfg.OpenAPI
		}
		oa.Spec = openapiFlag
		overrides.OpenAPI = &oa
	}
	if verboseFlag {
		overrides.Verbose = config.BoolPtr(true)
	}
	if noColorFlag {
		overrides.NoColor = config.BoolPtr(true)
	}
	if extra != nil {
		extra(overrides)
	}

	cfg = cfg.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the zap logger for a command
func newLogger(cfg *config.Config) *zap.Logger {
	log, err := logging.New(logging.Options{
		Verbose: cfg.GetVerbose(),
		NoColor: cfg.GetNoColor(),
	})
	if err != nil {
		return zap.NewNop()
	}
	return log
}
