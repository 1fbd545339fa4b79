package newman

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultCommand is the runner binary looked up on PATH
const DefaultCommand = "newman"

// Outcome is what one execution of the collection produced
type Outcome struct {
	Records []model.ExecutionRecord
	// TimedOut is set when the runner was killed at the deadline
	TimedOut bool
	// ExitCode is the runner's exit status, -1 when it was killed
	ExitCode int
	// ReportErr is set when no usable report was read
	ReportErr error
	// ReportPath is set when the raw report was kept on disk
	ReportPath string
	Attempts   int
	Duration   time.Duration
	// Output is the tail of the runner's console output
	Output []byte
}

// Executor runs collections through newman
type Executor struct {
	command    string
	args       []string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	keepReport bool
	output     io.Writer
	log        *zap.Logger
}

// Option is a functional option for Executor
type Option func(*Executor)

// WithCommand sets the runner binary
func WithCommand(cmd string) Option {
	return func(e *Executor) {
		if cmd != "" {
			e.command = cmd
		}
	}
}

// WithArgs appends extra arguments after the reporter flags
func WithArgs(args []string) Option {
	return func(e *Executor) {
		e.args = args
	}
}

// WithTimeout bounds each runner attempt
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithRetries re-runs the collection up to n more times, at most once per
// delay, when an attempt ends without a usable report. Timeouts are not
// retried.
func WithRetries(n int, delay time.Duration) Option {
	return func(e *Executor) {
		e.retries = n
		e.retryDelay = delay
	}
}

// WithKeepReport keeps the JSON report next to the collection
func WithKeepReport(keep bool) Option {
	return func(e *Executor) {
		e.keepReport = keep
	}
}

// WithOutput mirrors the runner's console output to w
func WithOutput(w io.Writer) Option {
	return func(e *Executor) {
		e.output = w
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.log = logging.OrNop(l)
	}
}

// NewExecutor creates an executor
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		command: DefaultCommand,
		timeout: 10 * time.Minute,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReportPath returns where the kept report of a collection is written
func ReportPath(collectionPath string) string {
	return strings.TrimSuffix(collectionPath, filepath.Ext(collectionPath)) + "_newman_report.json"
}

// Run executes the collection. The only error returned is a
// *model.RunnerUnavailableError when the runner cannot be started; every
// other problem is described by the Outcome.
func (e *Executor) Run(ctx context.Context, collectionPath string) (*Outcome, error) {
	reportPath := ReportPath(collectionPath)
	if !e.keepReport {
		dir, err := os.MkdirTemp("", "apiregress-newman-*")
		if err != nil {
			return nil, fmt.Errorf("creating report directory: %w", err)
		}
		defer os.RemoveAll(dir)
		reportPath = filepath.Join(dir, "report.json")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if e.retryDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(e.retryDelay), 1)
	}

	start := time.Now()
	var out *Outcome
	for attempt := 1; attempt <= e.retries+1; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			if out == nil {
				return nil, err
			}
			break
		}

		var err error
		out, err = e.attempt(ctx, collectionPath, reportPath)
		if err != nil {
			return nil, err
		}
		out.Attempts = attempt

		if out.ReportErr == nil || out.TimedOut || ctx.Err() != nil {
			break
		}
		if attempt <= e.retries {
			e.log.Warn("runner produced no report, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", e.retryDelay),
				zap.Error(out.ReportErr))
		}
	}
	out.Duration = time.Since(start)
	if e.keepReport && out.ReportErr == nil {
		out.ReportPath = reportPath
	}
	return out, nil
}

func (e *Executor) attempt(ctx context.Context, collectionPath, reportPath string) (*Outcome, error) {
	_ = os.Remove(reportPath)

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append([]string{
		"run", collectionPath,
		"--reporters", "cli,json",
		"--reporter-json-export", reportPath,
	}, e.args...)

	cmd := exec.CommandContext(runCtx, e.command, args...)
	cmd.WaitDelay = 2 * time.Second

	tail := newTailBuffer(defaultTailBytes)
	var sink io.Writer = tail
	if e.output != nil {
		sink = io.MultiWriter(tail, e.output)
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	e.log.Debug("starting collection runner", zap.String("command", cmd.String()))

	if err := cmd.Start(); err != nil {
		return nil, &model.RunnerUnavailableError{Command: e.command, Err: err}
	}
	runErr := cmd.Wait()

	out := &Outcome{Output: tail.Bytes()}
	if runCtx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		out.ExitCode = -1
		e.log.Warn("collection runner timed out", zap.Duration("timeout", e.timeout))
	} else if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			e.log.Info("collection runner exited non-zero", zap.Int("exit_code", out.ExitCode))
		} else {
			out.ExitCode = -1
			e.log.Warn("collection runner failed", zap.Error(runErr))
		}
	}

	records, err := ParseReportFile(reportPath)
	if err != nil {
		out.ReportErr = err
		if !out.TimedOut {
			e.log.Warn("execution report unavailable",
				zap.Error(err),
				zap.ByteString("output_tail", lastLines(out.Output, 20)),
				zap.Bool("output_truncated", tail.Truncated()))
		}
		return out, nil
	}
	out.Records = records

	e.log.Debug("execution report parsed", zap.Int("records", len(records)))
	return out, nil
}

func lastLines(b []byte, n int) []byte {
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return []byte(strings.Join(lines, "\n"))
}
