package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/output"
)

var (
	diffOutputFlag    string
	diffThresholdFlag string
)

var diffCmd = &cobra.Command{
	Use:   "diff <results1.json> <results2.json>",
	Short: "Compare two JSON result files",
	Long: `Compare two JSON result files written by "apiregress run --json" and show
which cases regressed, were fixed or changed between the runs.

The command fails when a case that passed in the first run does not pass in
the second, or when --threshold is set and a case got slower by more than
that percentage.

Examples:
  apiregress diff before.json after.json
  apiregress diff before.json after.json --output json
  apiregress diff before.json after.json --threshold 25%`,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE:         diffCommand,
}

func init() {
	diffCmd.Flags().StringVarP(&diffOutputFlag, "output", "o", "console", "Output format: console, json")
	diffCmd.Flags().StringVar(&diffThresholdFlag, "threshold", "", "Fail if any case is slower by this percentage (e.g., 10%)")
}

// Status changes between two runs
const (
	ChangeRegressed = "regressed"
	ChangeFixed     = "fixed"
	ChangeChanged   = "changed"
	ChangeUnchanged = "unchanged"
	ChangeNew       = "new"
	ChangeRemoved   = "removed"
)

// DiffResult holds the comparison result
type DiffResult struct {
	File1       string           `json:"file1"`
	File2       string           `json:"file2"`
	Comparisons []CaseComparison `json:"comparisons"`
	Summary     DiffSummary      `json:"summary"`
}

// CaseComparison is the comparison of one case across the two runs
type CaseComparison struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	StatusChange   string  `json:"statusChange"`
	Result1        string  `json:"result1,omitempty"`
	Result2        string  `json:"result2,omitempty"`
	Duration1      float64 `json:"duration1,omitempty"`
	Duration2      float64 `json:"duration2,omitempty"`
	DurationChange float64 `json:"durationChange,omitempty"`
}

// DiffSummary provides overall statistics
type DiffSummary struct {
	TotalCases       int     `json:"totalCases"`
	Regressed        int     `json:"regressed"`
	Fixed            int     `json:"fixed"`
	Changed          int     `json:"changed"`
	Unchanged        int     `json:"unchanged"`
	NewCases         int     `json:"newCases"`
	RemovedCases     int     `json:"removedCases"`
	TotalDuration1   float64 `json:"totalDuration1"`
	TotalDuration2   float64 `json:"totalDuration2"`
	ThresholdPercent float64 `json:"thresholdPercent,omitempty"`
	ThresholdPassed  bool    `json:"thresholdPassed"`
}

// Failed reports whether the comparison should fail the command
func (s DiffSummary) Failed() bool {
	return s.Regressed > 0 || !s.ThresholdPassed
}

func diffCommand(cmd *cobra.Command, args []string) error {
	file1, file2 := args[0], args[1]
	if noColorFlag {
		color.NoColor = true
	}

	results1, err := loadResultsFile(file1)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", file1, err)
	}
	results2, err := loadResultsFile(file2)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", file2, err)
	}

	var threshold float64
	if diffThresholdFlag != "" {
		threshold, err = parseThreshold(diffThresholdFlag)
		if err != nil {
			return &usageError{err: err}
		}
	}

	diff := compareResults(file1, file2, results1, results2, threshold)

	switch strings.ToLower(diffOutputFlag) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(diff); err != nil {
			return err
		}
	case "", "console":
		outputDiffConsole(cmd.OutOrStdout(), diff)
	default:
		return &usageError{err: fmt.Errorf("unknown output format %q", diffOutputFlag)}
	}

	if diff.Summary.Failed() {
		return fmt.Errorf("%d regression(s) found", diff.Summary.Regressed+thresholdFailures(diff))
	}
	return nil
}

func loadResultsFile(path string) (*output.JSONOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var results output.JSONOutput
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

func parseThreshold(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q: %w", s, err)
	}
	return v, nil
}

func compareResults(file1, file2 string, results1, results2 *output.JSONOutput, threshold float64) *DiffResult {
	diff := &DiffResult{
		File1: file1,
		File2: file2,
		Summary: DiffSummary{
			TotalDuration1:   results1.Duration,
			TotalDuration2:   results2.Duration,
			ThresholdPercent: threshold,
			ThresholdPassed:  true,
		},
	}

	tests1 := make(map[string]output.JSONTest, len(results1.Tests))
	tests2 := make(map[string]output.JSONTest, len(results2.Tests))
	var ids []string
	for _, t := range results1.Tests {
		tests1[t.ID] = t
		ids = append(ids, t.ID)
	}
	for _, t := range results2.Tests {
		tests2[t.ID] = t
		if _, seen := tests1[t.ID]; !seen {
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		t1, in1 := tests1[id]
		t2, in2 := tests2[id]
		comp := CaseComparison{ID: id}

		switch {
		case in1 && in2:
			comp.Name = t2.Name
			comp.Result1, comp.Result2 = t1.Result, t2.Result
			comp.Duration1, comp.Duration2 = t1.Duration, t2.Duration
			if t1.Duration > 0 {
				comp.DurationChange = (t2.Duration - t1.Duration) / t1.Duration * 100
			}

			pass1 := t1.Result == string(model.Pass)
			pass2 := t2.Result == string(model.Pass)
			switch {
			case pass1 && !pass2:
				comp.StatusChange = ChangeRegressed
				diff.Summary.Regressed++
			case !pass1 && pass2:
				comp.StatusChange = ChangeFixed
				diff.Summary.Fixed++
			case t1.Result != t2.Result:
				comp.StatusChange = ChangeChanged
				diff.Summary.Changed++
			default:
				comp.StatusChange = ChangeUnchanged
				diff.Summary.Unchanged++
			}

			if threshold > 0 && comp.DurationChange > threshold {
				diff.Summary.ThresholdPassed = false
			}
		case in1:
			comp.Name = t1.Name
			comp.Result1 = t1.Result
			comp.Duration1 = t1.Duration
			comp.StatusChange = ChangeRemoved
			diff.Summary.RemovedCases++
		default:
			comp.Name = t2.Name
			comp.Result2 = t2.Result
			comp.Duration2 = t2.Duration
			comp.StatusChange = ChangeNew
			diff.Summary.NewCases++
		}

		diff.Comparisons = append(diff.Comparisons, comp)
		diff.Summary.TotalCases++
	}

	return diff
}

func thresholdFailures(diff *DiffResult) int {
	if diff.Summary.ThresholdPercent <= 0 {
		return 0
	}
	n := 0
	for _, c := range diff.Comparisons {
		if c.StatusChange != ChangeRegressed && c.DurationChange > diff.Summary.ThresholdPercent {
			n++
		}
	}
	return n
}

func outputDiffConsole(w io.Writer, diff *DiffResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()
	plain := func(a ...interface{}) string { return fmt.Sprint(a...) }

	fmt.Fprintf(w, "\n%s\n", bold("Results Comparison"))
	fmt.Fprintf(w, "  %s: %s\n", cyan("File 1"), diff.File1)
	fmt.Fprintf(w, "  %s: %s\n\n", cyan("File 2"), diff.File2)

	fmt.Fprintf(w, "%s\n", bold("Summary"))
	fmt.Fprintf(w, "  Total Cases:    %d\n", diff.Summary.TotalCases)
	if diff.Summary.Regressed > 0 {
		fmt.Fprintf(w, "  Regressed:      %s\n", red(diff.Summary.Regressed))
	}
	if diff.Summary.Fixed > 0 {
		fmt.Fprintf(w, "  Fixed:          %s\n", green(diff.Summary.Fixed))
	}
	if diff.Summary.Changed > 0 {
		fmt.Fprintf(w, "  Changed:        %s\n", yellow(diff.Summary.Changed))
	}
	if diff.Summary.Unchanged > 0 {
		fmt.Fprintf(w, "  Unchanged:      %d\n", diff.Summary.Unchanged)
	}
	if diff.Summary.NewCases > 0 {
		fmt.Fprintf(w, "  New Cases:      %s\n", cyan(diff.Summary.NewCases))
	}
	if diff.Summary.RemovedCases > 0 {
		fmt.Fprintf(w, "  Removed Cases:  %s\n", yellow(diff.Summary.RemovedCases))
	}
	fmt.Fprintf(w, "  Duration:       %.0fms → %.0fms\n\n", diff.Summary.TotalDuration1, diff.Summary.TotalDuration2)

	fmt.Fprintf(w, "%s\n", bold("Case Details"))
	for _, comp := range diff.Comparisons {
		var symbol string
		var paint func(a ...interface{}) string

		switch comp.StatusChange {
		case ChangeRegressed:
			symbol, paint = "↓", red
		case ChangeFixed:
			symbol, paint = "↑", green
		case ChangeChanged:
			symbol, paint = "~", yellow
		case ChangeNew:
			symbol, paint = "+", cyan
		case ChangeRemoved:
			symbol, paint = "-", yellow
		default:
			symbol, paint = "=", plain
		}

		label := comp.ID
		if comp.Name != "" && comp.Name != comp.ID {
			label += " (" + comp.Name + ")"
		}

		switch comp.StatusChange {
		case ChangeNew:
			fmt.Fprintf(w, "  %s %s  (new, %s)\n", paint(symbol), label, comp.Result2)
		case ChangeRemoved:
			fmt.Fprintf(w, "  %s %s  (removed)\n", paint(symbol), label)
		default:
			change := ""
			if comp.DurationChange != 0 {
				change = fmt.Sprintf("%+.1f%%", comp.DurationChange)
			}
			fmt.Fprintf(w, "  %s %s  %s → %s  %.0fms → %.0fms %s\n",
				paint(symbol), label, comp.Result1, comp.Result2,
				comp.Duration1, comp.Duration2, paint(change))
		}
	}
	fmt.Fprintln(w)

	if diff.Summary.ThresholdPercent > 0 {
		if diff.Summary.ThresholdPassed {
			fmt.Fprintf(w, "%s Threshold check passed (max slowdown: %.1f%%)\n", green("✓"), diff.Summary.ThresholdPercent)
		} else {
			fmt.Fprintf(w, "%s Threshold check failed (some cases exceeded %.1f%% slowdown)\n", red("✗"), diff.Summary.ThresholdPercent)
		}
	}
}
