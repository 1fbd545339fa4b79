// Package normalize turns a spreadsheet or an OpenAPI document into the
// uniform set of test cases the pipeline runs.
package normalize

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/import/excel"
	"github.com/abdul-hamid-achik/apiregress/packages/import/openapi"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
	"go.uber.org/zap"
)

// Result is the normalized input of a run
type Result struct {
	Source    string
	Endpoints []*model.EndpointSpec
	Cases     []model.TestCase
	// Skipped holds one error per record or operation that was dropped
	Skipped []error
	// Spreadsheet is set when Source is a workbook the results can be written back to
	Spreadsheet bool
}

// Normalizer loads test cases from the configured source
type Normalizer struct {
	log *zap.Logger
}

// Option is a functional option for Normalizer
type Option func(*Normalizer)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(n *Normalizer) {
		n.log = logging.OrNop(l)
	}
}

// New creates a Normalizer
func New(opts ...Option) *Normalizer {
	n := &Normalizer{log: zap.NewNop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Load reads the source selected by cfg: the OpenAPI document when
// openapi.spec is set, otherwise the workbook at excel_path.
func (n *Normalizer) Load(ctx context.Context, cfg *config.Config) (*Result, error) {
	if cfg.OpenAPI != nil && cfg.OpenAPI.Spec != "" {
		doc, err := openapi.Load(ctx, cfg.OpenAPI.Spec)
		if err != nil {
			return nil, err
		}
		conv := openapi.NewConverter(
			openapi.WithBaseURL(cfg.OpenAPI.BaseURL),
			openapi.WithTags(cfg.OpenAPI.Tags),
			openapi.WithExcludeTags(cfg.OpenAPI.ExcludeTags),
			openapi.WithOperations(cfg.OpenAPI.Operations),
			openapi.WithLogger(n.log),
		)
		res := conv.Convert(ctx, doc, cfg.OpenAPI.Spec)
		return n.finish(cfg.OpenAPI.Spec, false, res.Endpoints, res.Cases, res.Skipped)
	}

	if cfg.ExcelPath == "" {
		return nil, &model.ConfigError{Field: "excel_path", Reason: "either excel_path or openapi.spec is required"}
	}
	sheets, err := excel.Load(cfg.ExcelPath)
	if err != nil {
		return nil, fmt.Errorf("loading test cases: %w", err)
	}
	return n.FromSheets(cfg.ExcelPath, sheets)
}

// FromSheets normalizes already loaded worksheets
func (n *Normalizer) FromSheets(source string, sheets []excel.Sheet) (*Result, error) {
	cases, skipped := excel.NewConverter(excel.WithLogger(n.log)).Convert(sheets)
	return n.finish(source, true, nil, cases, skipped)
}

func (n *Normalizer) finish(source string, spreadsheet bool, endpoints []*model.EndpointSpec, cases []model.TestCase, skipped []error) (*Result, error) {
	seen := make(map[string]bool, len(cases))
	unique := cases[:0:0]
	for _, tc := range cases {
		if seen[tc.ID] {
			err := fmt.Errorf("duplicate test case id %q", tc.ID)
			n.log.Warn("skipping test case", zap.Error(err))
			skipped = append(skipped, err)
			continue
		}
		seen[tc.ID] = true
		unique = append(unique, tc)
	}

	if len(unique) == 0 {
		return nil, &model.NoTestCasesError{Source: source, Skipped: len(skipped)}
	}

	n.log.Info("test cases loaded",
		zap.String("source", source),
		zap.Int("cases", len(unique)),
		zap.Int("skipped", len(skipped)))

	return &Result{
		Source:      source,
		Endpoints:   endpoints,
		Cases:       unique,
		Skipped:     skipped,
		Spreadsheet: spreadsheet,
	}, nil
}
