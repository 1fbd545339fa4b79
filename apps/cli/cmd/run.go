package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/core/runner"
	"github.com/abdul-hamid-achik/apiregress/packages/export/metrics"
	"github.com/abdul-hamid-achik/apiregress/packages/history"
	"github.com/abdul-hamid-achik/apiregress/packages/notify"
	"github.com/abdul-hamid-achik/apiregress/packages/output"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the API regression pipeline",
	Long: `Normalize the test cases, build the Postman collection, execute it with
newman and write the results workbook. Notifications are sent afterwards.

The exit code is non-zero only when the run is aborted (configuration,
authentication, runner or input errors). Failing cases do not change it.

Examples:
  apiregress run
  apiregress run --config services_config.yaml
  apiregress run --excel cases.xlsx --output-dir out
  apiregress run --openapi https://api.example.com/openapi.json --json results.json
  apiregress run --output junit --output-file report.xml
  apiregress run --watch`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	timeoutFlag    string
	outputFlag     string
	outputFileFlag string
	jsonFileFlag   string
	notifyOnFlag   string
	noNotifyFlag   bool
	watchFlag      bool
)

func init() {
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("APIREGRESS_TIMEOUT", ""), "Runner timeout (e.g., 10m, 90s), overrides runner.timeout (env: APIREGRESS_TIMEOUT)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("APIREGRESS_OUTPUT", "console"), "Output format: console, json, junit, tap (env: APIREGRESS_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("APIREGRESS_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: APIREGRESS_OUTPUT_FILE)")
	runCmd.Flags().StringVar(&jsonFileFlag, "json", getEnvString("APIREGRESS_JSON", ""), "Also write a JSON summary to this file (env: APIREGRESS_JSON)")
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("APIREGRESS_NOTIFY_ON", ""), "When to notify: always, failure, success, recovery (env: APIREGRESS_NOTIFY_ON)")
	runCmd.Flags().BoolVar(&noNotifyFlag, "no-notify", getEnvBool("APIREGRESS_NO_NOTIFY", false), "Do not send email, Slack or Teams notifications (env: APIREGRESS_NO_NOTIFY)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch the input and config files and re-run on change")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return val == "yes"
		}
		return b
	}
	return defaultVal
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatResult(result *runner.Result)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// newFormatter creates the formatter selected by --output
func newFormatter(format string, cfg *config.Config, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w)), nil
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w)), nil
	case "tap":
		return output.NewTAPFormatter(output.TAPWithWriter(w)), nil
	case "", "console":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor()),
		), nil
	default:
		return nil, &usageError{err: fmt.Errorf("unknown output format %q", format)}
	}
}

// session holds what one invocation of run keeps across watch iterations
type session struct {
	cfg      *config.Config
	log      *zap.Logger
	runner   *runner.Runner
	store    *history.Store
	notifier *notify.Manager
	out      io.Writer
}

// runOverrides applies the run specific flags on top of the config file
func runOverrides(o *config.Config) {
	o.Runner.Timeout = timeoutFlag
	o.NotifyOn = notifyOnFlag
}

// fail prints err for commands that silence cobra's own error output
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return err
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runOverrides)
	if err != nil {
		return fail(cmd, err)
	}

	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	var out io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return fail(cmd, fmt.Errorf("cannot create output file: %w", err))
		}
		defer f.Close()
		out = f
	}
	if _, err := newFormatter(outputFlag, cfg, out); err != nil {
		return fail(cmd, err)
	}

	s := &session{
		cfg:    cfg,
		log:    log,
		runner: runner.NewRunner(cfg, runner.WithLogger(log)),
		out:    out,
	}

	if cfg.History != nil && cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Warn("run history unavailable", zap.String("path", cfg.History.Path), zap.Error(err))
		} else {
			defer store.Close()
			s.store = store
		}
	}
	if !noNotifyFlag {
		s.notifier = buildNotifier(cfg, log)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := s.runOnce(ctx)
	if !watchFlag {
		return runErr
	}
	if err := s.watch(ctx, cmd); err != nil {
		return fail(cmd, err)
	}
	return nil
}

// buildNotifier creates the notification manager for the configured
// services. It returns nil when none is configured.
func buildNotifier(cfg *config.Config, log *zap.Logger) *notify.Manager {
	var notifiers []notify.Notifier
	if cfg.Email != nil && len(cfg.Email.Recipients) > 0 {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.Email, notify.WithEmailLogger(log)))
	}
	if cfg.Slack != nil {
		var opts []notify.SlackOption
		if cfg.Slack.Channel != "" {
			opts = append(opts, notify.WithSlackChannel(cfg.Slack.Channel))
		}
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Slack.Webhook, opts...))
	}
	if cfg.Teams != nil {
		notifiers = append(notifiers, notify.NewTeamsNotifier(cfg.Teams.Webhook))
	}
	if len(notifiers) == 0 {
		return nil
	}

	m := notify.NewManager(notify.NotifyOn(cfg.NotifyOn), notifiers...)
	m.SetLogger(log)
	return m
}

// runOnce executes the pipeline, prints it, then records and notifies.
// It returns the error that aborted the run, if any.
func (s *session) runOnce(ctx context.Context) error {
	formatter, err := newFormatter(outputFlag, s.cfg, s.out)
	if err != nil {
		return err
	}
	formatters := []Formatter{formatter}

	if jsonFileFlag != "" {
		f, err := os.Create(jsonFileFlag)
		if err != nil {
			s.log.Error("cannot create JSON summary file", zap.String("path", jsonFileFlag), zap.Error(err))
		} else {
			defer f.Close()
			formatters = append(formatters, output.NewJSONFormatter(output.JSONWithWriter(f)))
		}
	}

	formatter.FormatHeader(version)

	start := time.Now()
	res, runErr := s.runner.Run(ctx)
	for _, f := range formatters {
		if runErr != nil {
			f.FormatError(runErr)
		}
		if res != nil && res.Run != nil {
			f.FormatResult(res)
		}
	}
	for _, f := range formatters {
		if flushable, ok := f.(Flushable); ok {
			if err := flushable.Flush(time.Since(start)); err != nil {
				s.log.Error("error writing output", zap.Error(err))
			}
		}
	}

	// The notification policy compares against the previous run, so it is
	// read before this run is recorded.
	if s.notifier != nil && s.store != nil {
		if ok, found, err := s.store.LastRunSucceeded(ctx); err != nil {
			s.log.Warn("reading run history", zap.Error(err))
		} else if found {
			s.notifier.SetLastState(ok)
		}
	}
	if s.store != nil {
		if id, err := s.store.RecordRun(ctx, res, runErr); err != nil {
			s.log.Warn("recording run history", zap.Error(err))
		} else {
			s.log.Debug("run recorded", zap.String("run_id", id))
		}
	}
	if s.cfg.Metrics != nil {
		s.exportMetrics(ctx, res, runErr)
	}
	if s.notifier != nil {
		// Failures are logged by the manager and never fail the run.
		_ = s.notifier.Notify(notify.NewRunSummary(res, runErr))
	}

	return runErr
}

// exportMetrics writes the Prometheus metrics of a run. Failures are logged.
func (s *session) exportMetrics(ctx context.Context, res *runner.Result, runErr error) {
	m := s.cfg.Metrics
	c := metrics.NewCollector()
	c.Observe(res, runErr)

	if m.Textfile != "" {
		if err := c.WriteTextfile(m.Textfile); err != nil {
			s.log.Warn("writing metrics textfile", zap.String("path", m.Textfile), zap.Error(err))
		} else {
			s.log.Debug("metrics written", zap.String("path", m.Textfile))
		}
	}
	if m.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(ctx, m.GetTimeout())
		defer cancel()
		if err := c.Push(pushCtx, m.Pushgateway, m.GetJob(), nil); err != nil {
			s.log.Warn("pushing metrics", zap.Error(err))
		} else {
			s.log.Debug("metrics pushed", zap.String("pushgateway", m.Pushgateway), zap.String("job", m.GetJob()))
		}
	}
}

// watchedFiles returns the local files whose change triggers a re-run
func (s *session) watchedFiles() []string {
	var files []string
	if s.cfg.ExcelPath != "" {
		files = append(files, s.cfg.ExcelPath)
	}
	if s.cfg.OpenAPI != nil && !strings.Contains(s.cfg.OpenAPI.Spec, "://") {
		files = append(files, s.cfg.OpenAPI.Spec)
	}
	if configFlag != "" {
		files = append(files, configFlag)
	}
	return files
}

func (s *session) watch(ctx context.Context, cmd *cobra.Command) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so the parent directories are watched
	// and events are filtered by name.
	targets := make(map[string]bool)
	watchedDirs := make(map[string]bool)
	for _, file := range s.watchedFiles() {
		abs, err := filepath.Abs(file)
		if err != nil {
			continue
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				s.log.Warn("failed to watch directory", zap.String("dir", dir), zap.Error(err))
			}
			watchedDirs[dir] = true
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("nothing to watch: the input is not a local file")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	rerun := make(chan string, 1)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !targets[abs] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- name:
				default:
				}
			})

		case name := <-rerun:
			fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed: %s\nRe-running...\n\n", name)
			if filepath.Clean(name) == filepath.Clean(configFlag) {
				cfg, err := loadConfig(runOverrides)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
					continue
				}
				s.cfg = cfg
				s.runner = runner.NewRunner(cfg, runner.WithLogger(s.log))
			}
			_ = s.runOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}
