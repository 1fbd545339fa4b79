package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/apiregress/packages/auth"
	"github.com/abdul-hamid-achik/apiregress/packages/collection"
	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
	"github.com/abdul-hamid-achik/apiregress/packages/newman"
	"github.com/abdul-hamid-achik/apiregress/packages/normalize"
	"github.com/abdul-hamid-achik/apiregress/packages/reconcile"
	"github.com/abdul-hamid-achik/apiregress/packages/report"
)

// Loader produces the normalized test cases of a run
type Loader interface {
	Load(ctx context.Context, cfg *config.Config) (*normalize.Result, error)
}

// TokenResolver performs the pre-flight authentication call
type TokenResolver interface {
	Resolve(ctx context.Context) (*auth.Injection, error)
}

// Executor runs a written collection file
type Executor interface {
	Run(ctx context.Context, collectionPath string) (*newman.Outcome, error)
}

type Runner struct {
	config   *config.Config
	loader   Loader
	tokens   TokenResolver
	executor Executor
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Runner)

func WithLoader(l Loader) Option {
	return func(r *Runner) {
		r.loader = l
	}
}

// WithTokenResolver overrides the resolver built from the auth config
func WithTokenResolver(t TokenResolver) Option {
	return func(r *Runner) {
		r.tokens = t
	}
}

func WithExecutor(e Executor) Option {
	return func(r *Runner) {
		r.executor = e
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.log = logging.OrNop(l)
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r := &Runner{
		config: cfg,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.loader == nil {
		r.loader = normalize.New(normalize.WithLogger(r.log))
	}
	if r.tokens == nil && cfg.Auth != nil {
		r.tokens = auth.NewResolver(cfg.Auth, cfg.AuthBaseURL(), auth.WithLogger(r.log))
	}
	if r.executor == nil {
		execOpts := []newman.Option{
			newman.WithCommand(cfg.Runner.Command),
			newman.WithArgs(cfg.Runner.Args),
			newman.WithTimeout(cfg.Runner.GetTimeout()),
			newman.WithRetries(cfg.Runner.Retries, cfg.Runner.GetRetryDelay()),
			newman.WithKeepReport(cfg.Runner.GetKeepReport()),
			newman.WithLogger(r.log),
		}
		if cfg.Runner.GetVerbose() {
			execOpts = append(execOpts, newman.WithOutput(os.Stderr))
		}
		r.executor = newman.NewExecutor(execOpts...)
	}
	return r
}

// Result is everything a run produced. Fields are filled up to the stage
// the run reached.
type Result struct {
	Source         string
	CollectionName string
	Spreadsheet    bool
	Cases          []model.TestCase
	Skipped        []error

	Collection     *collection.Collection
	CollectionPath string
	BuildFailures  []*model.BuildError

	Outcome *newman.Outcome
	Run     *model.RunResult
	Latency report.Latency

	WorkbookPath string
	Attachments  []report.Attachment

	StartedAt time.Time
	Duration  time.Duration
}

// Counts tallies the reconciled results, zero when the run never reconciled
func (r *Result) Counts() model.Counts {
	if r == nil || r.Run == nil {
		return model.Counts{}
	}
	return r.Run.Counts()
}

// Case looks up a test case by id
func (r *Result) Case(id string) (*model.TestCase, bool) {
	for i := range r.Cases {
		if r.Cases[i].ID == id {
			return &r.Cases[i], true
		}
	}
	return nil, false
}

// FailedLabels returns the user facing labels of every case that did not
// pass, in case order
func (r *Result) FailedLabels() []string {
	if r == nil || r.Run == nil {
		return nil
	}
	var labels []string
	for _, tc := range r.Cases {
		res, ok := r.Run.Result(tc.ID)
		if ok && res.Classification != model.Pass {
			labels = append(labels, tc.DisplayName())
		}
	}
	return labels
}

func (r *Runner) collectionName() string {
	if r.config.CollectionName != "" {
		return r.config.CollectionName
	}
	return config.DefaultCollectionName
}

func (r *Runner) collectionPath() string {
	return filepath.Join(r.config.OutputDir, collection.FileName(r.collectionName()))
}

// Generate normalizes the input and writes the collection without running
// it. No authentication call is made.
func (r *Runner) Generate(ctx context.Context) (*Result, error) {
	res := &Result{StartedAt: r.now(), CollectionName: r.collectionName()}
	defer func() { res.Duration = r.now().Sub(res.StartedAt) }()

	if err := r.load(ctx, res); err != nil {
		return res, err
	}
	if err := r.build(res, nil); err != nil {
		return res, err
	}
	return res, nil
}

// Run executes the whole pipeline. The returned error is non-nil only for
// failures that abort the run; per-case problems are part of the result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{StartedAt: r.now(), CollectionName: r.collectionName()}
	defer func() { res.Duration = r.now().Sub(res.StartedAt) }()

	if err := r.load(ctx, res); err != nil {
		return res, err
	}

	var inj *auth.Injection
	if r.tokens != nil {
		var err error
		inj, err = r.tokens.Resolve(ctx)
		if err != nil {
			r.log.Error("authentication failed, no requests will be sent", zap.Error(err))
			res.Run = reconcile.AllError(res.Cases, reconcile.ReasonAuthFailed)
			return res, err
		}
	}

	if err := r.build(res, inj); err != nil {
		return res, err
	}

	var exec reconcile.Execution
	if res.Collection.Len() == 0 {
		r.log.Warn("collection has no items, skipping execution")
	} else {
		out, err := r.executor.Run(ctx, res.CollectionPath)
		if err != nil {
			return res, err
		}
		res.Outcome = out
		exec = reconcile.Execution{
			Records:           out.Records,
			TimedOut:          out.TimedOut,
			ReportUnavailable: out.ReportErr != nil,
		}
		r.log.Info("collection executed",
			zap.Int("records", len(out.Records)),
			zap.Int("exit_code", out.ExitCode),
			zap.Bool("timed_out", out.TimedOut),
			zap.Duration("duration", out.Duration))
	}

	res.Run = reconcile.New(reconcile.WithLogger(r.log)).Reconcile(res.Cases, res.BuildFailures, exec)
	res.Latency = report.ComputeLatency(res.Run.Results())

	if err := r.writeReport(res); err != nil {
		return res, err
	}
	res.Attachments = report.Attachments(res.CollectionPath, res.WorkbookPath)

	c := res.Run.Counts()
	r.log.Info("run finished",
		zap.Int("total", c.Total),
		zap.Int("passed", c.Passed),
		zap.Int("failed", c.Failed),
		zap.Int("errors", c.Errored),
		zap.Int("no_result", c.NoResult),
		zap.Int("anomalies", len(res.Run.Anomalies())))
	return res, nil
}

func (r *Runner) load(ctx context.Context, res *Result) error {
	norm, err := r.loader.Load(ctx, r.config)
	if err != nil {
		return err
	}
	res.Source = norm.Source
	res.Spreadsheet = norm.Spreadsheet
	res.Cases = norm.Cases
	res.Skipped = norm.Skipped
	r.log.Info("test cases loaded",
		zap.String("source", norm.Source),
		zap.Int("cases", len(norm.Cases)),
		zap.Int("skipped", len(norm.Skipped)))
	return nil
}

func (r *Runner) build(res *Result, inj *auth.Injection) error {
	b := collection.NewBuilder(
		collection.WithName(res.CollectionName),
		collection.WithGatewayBaseURL(r.config.GatewayBaseURL),
		collection.WithDefaultHeaders(r.config.Headers),
		collection.WithAuth(inj),
		collection.WithLogger(r.log),
	)
	coll, failures := b.Build(res.Cases)
	res.Collection = coll
	res.BuildFailures = failures

	path := r.collectionPath()
	if err := coll.WriteFile(path); err != nil {
		return fmt.Errorf("writing collection: %w", err)
	}
	res.CollectionPath = path
	r.log.Info("collection written",
		zap.String("path", path),
		zap.Int("items", coll.Len()),
		zap.Int("build_failures", len(failures)))
	return nil
}

func (r *Runner) writeReport(res *Result) error {
	w := report.NewWriter(r.config.OutputDir, report.WithLogger(r.log))
	sum := report.Summary{
		Collection: res.CollectionName,
		Source:     res.Source,
		StartedAt:  res.StartedAt,
		Duration:   r.now().Sub(res.StartedAt),
	}

	var (
		path string
		err  error
	)
	if res.Spreadsheet {
		path, err = w.WriteSpreadsheet(res.Source, res.Cases, res.Run, sum)
	} else {
		path, err = w.WriteFresh(res.Cases, res.Run, sum)
	}
	if err != nil {
		return fmt.Errorf("writing results workbook: %w", err)
	}
	res.WorkbookPath = path
	return nil
}
