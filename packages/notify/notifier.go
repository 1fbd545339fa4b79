// Package notify delivers run summaries by email, Slack and Microsoft Teams.
package notify

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/core/runner"
	"github.com/abdul-hamid-achik/apiregress/packages/report"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a case did not pass
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when every case passed
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failure and when a run recovers
	NotifyRecovery NotifyOn = "recovery"
)

// RunSummary represents the summary of a run for notifications
type RunSummary struct {
	Collection    string              `json:"collection"`
	Source        string              `json:"source,omitempty"`
	TotalTests    int                 `json:"total_tests"`
	PassedTests   int                 `json:"passed_tests"`
	FailedTests   int                 `json:"failed_tests"`
	ErrorTests    int                 `json:"error_tests"`
	NoResultTests int                 `json:"no_result_tests"`
	Duration      time.Duration       `json:"duration"`
	FailedIDs     []string            `json:"failed_ids,omitempty"`
	FailedResults []FailedTest        `json:"failed_results,omitempty"`
	Attachments   []report.Attachment `json:"-"`
	// Fatal holds the error that aborted the run
	Fatal      string `json:"fatal,omitempty"`
	IsRecovery bool   `json:"is_recovery,omitempty"`
}

// FailedTest represents a case that did not pass
type FailedTest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result"`
	Detail string `json:"detail,omitempty"`
}

// Succeeded reports whether the run completed with every case passing
func (s *RunSummary) Succeeded() bool {
	return s.Fatal == "" && s.TotalTests > 0 && s.PassedTests == s.TotalTests
}

// NotPassed is the number of cases that did not pass
func (s *RunSummary) NotPassed() int {
	return s.FailedTests + s.ErrorTests + s.NoResultTests
}

// NewRunSummary summarizes a run. runErr is the error that aborted it, if any.
func NewRunSummary(res *runner.Result, runErr error) *RunSummary {
	s := &RunSummary{}
	if runErr != nil {
		s.Fatal = runErr.Error()
	}
	if res == nil {
		return s
	}

	s.Collection = res.CollectionName
	s.Source = res.Source
	s.Duration = res.Duration
	s.Attachments = res.Attachments
	s.FailedIDs = res.FailedLabels()

	c := res.Counts()
	s.TotalTests = c.Total
	s.PassedTests = c.Passed
	s.FailedTests = c.Failed
	s.ErrorTests = c.Errored
	s.NoResultTests = c.NoResult

	if res.Run != nil {
		for _, tc := range res.Cases {
			r, ok := res.Run.Result(tc.ID)
			if !ok || r.Classification == model.Pass {
				continue
			}
			s.FailedResults = append(s.FailedResults, FailedTest{
				ID:     tc.ID,
				Name:   tc.DisplayName(),
				Result: string(r.Classification),
				Detail: r.Detail,
			})
		}
	}
	return s
}

// title is the one line headline shared by the notifiers
func (s *RunSummary) title() string {
	switch {
	case s.Fatal != "":
		return "Run aborted: " + s.Fatal
	case s.NotPassed() > 0:
		return fmt.Sprintf("%d test(s) did not pass", s.NotPassed())
	case s.IsRecovery:
		return "Tests recovered!"
	default:
		return "All tests passed!"
	}
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about run results
	Notify(summary *RunSummary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager manages multiple notifiers
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool // true if last run was successful
	log       *zap.Logger
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	if notifyOn == "" {
		notifyOn = NotifyAlways
	}
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true, // Assume success initially
		log:       zap.NewNop(),
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// SetLogger sets the logger notification failures are reported to
func (m *Manager) SetLogger(l *zap.Logger) {
	m.log = l
}

// SetLastState records the outcome of the previous run, as read from the
// run history
func (m *Manager) SetLastState(succeeded bool) {
	m.lastState = succeeded
}

// Len returns the number of notifiers
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// ShouldNotify applies the policy to a summary. It marks recoveries.
func (m *Manager) ShouldNotify(summary *RunSummary) bool {
	success := summary.Succeeded()

	switch m.notifyOn {
	case NotifyFailure:
		return !success
	case NotifySuccess:
		return success
	case NotifyRecovery:
		if !m.lastState && success {
			summary.IsRecovery = true
			return true
		}
		return !success
	default:
		return true
	}
}

// Notify sends notifications based on the configured policy. Notifiers run
// concurrently and every one is attempted; failures are logged and returned
// joined in notifier order.
func (m *Manager) Notify(summary *RunSummary) error {
	shouldNotify := m.ShouldNotify(summary)
	m.lastState = summary.Succeeded()

	if !shouldNotify {
		m.log.Debug("notification skipped by policy", zap.String("notify_on", string(m.notifyOn)))
		return nil
	}

	errs := make([]error, len(m.notifiers))
	var g errgroup.Group
	for i, n := range m.notifiers {
		i, n := i, n
		g.Go(func() error {
			if err := n.Notify(summary); err != nil {
				m.log.Warn("notification failed", zap.String("notifier", n.Name()), zap.Error(err))
				errs[i] = fmt.Errorf("%s: %w", n.Name(), err)
				return nil
			}
			m.log.Info("notification sent", zap.String("notifier", n.Name()))
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
