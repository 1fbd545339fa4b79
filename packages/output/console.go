package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/core/runner"
)

// truncate shortens long values for display
func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) colorize(c model.Classification) string {
	switch c {
	case model.Pass:
		return color.New(color.FgGreen).Sprint("✓ pass")
	case model.Fail:
		return color.New(color.FgRed).Sprint("✗ fail")
	case model.Error:
		return color.New(color.FgRed, color.Bold).Sprint("x error")
	default:
		return color.New(color.FgYellow).Sprint("- no result")
	}
}

func (f *ConsoleFormatter) FormatResult(result *runner.Result) {
	if result == nil {
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n", bold("Running: "+result.CollectionName))
	if result.Source != "" {
		fmt.Fprintf(f.writer, "Source: %s\n", result.Source)
	}
	for _, err := range result.Skipped {
		fmt.Fprintf(f.writer, "  %s %v\n", yellow("skipped"), err)
	}

	rows := collect(result)
	if len(rows) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(f.writer)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Case", "Name", "Result", "Expected", "Actual", "Detail"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Case", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
			{Name: "Name", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
			{Name: "Expected", Align: text.AlignRight},
			{Name: "Actual", Align: text.AlignRight},
			{Name: "Detail", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		})

		for _, r := range rows {
			if !f.verbose && r.Result.Classification == model.Pass {
				continue
			}
			actual := "-"
			if r.Result.ActualStatus > 0 {
				actual = fmt.Sprint(r.Result.ActualStatus)
			}
			t.AppendRow(table.Row{
				r.Case.ID,
				r.Case.DisplayName(),
				f.colorize(r.Result.Classification),
				r.Case.ExpectedStatus,
				actual,
				truncate(r.Result.Detail, 200),
			})
		}
		if t.Length() > 0 {
			t.Render()
		}
	}

	if result.Run != nil {
		for _, a := range result.Run.Anomalies() {
			fmt.Fprintf(f.writer, "  %s %s record %s (%s)\n", yellow("!"), a.Kind, a.CorrelationID, a.Detail)
		}
	}

	c := result.Counts()
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Tests: ")
	if c.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", c.Passed)))
	}
	if c.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", c.Failed)))
	}
	if c.Errored > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d errors", c.Errored)))
	}
	if c.NoResult > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d no result", c.NoResult)))
	}
	fmt.Fprintf(f.writer, "%d total\n", c.Total)
	fmt.Fprintf(f.writer, "Time:  %dms\n", result.Duration.Milliseconds())

	if lat := result.Latency; !lat.Empty() {
		fmt.Fprintf(f.writer, "Latency: %s\n", cyan(fmt.Sprintf("p50 %dms, p95 %dms, p99 %dms, max %dms",
			lat.P50.Milliseconds(), lat.P95.Milliseconds(), lat.P99.Milliseconds(), lat.Max.Milliseconds())))
	}
	if result.CollectionPath != "" {
		fmt.Fprintf(f.writer, "Collection: %s\n", result.CollectionPath)
	}
	if result.WorkbookPath != "" {
		fmt.Fprintf(f.writer, "Results:    %s\n", result.WorkbookPath)
	}
	if f.verbose && result.Outcome != nil && len(result.Outcome.Output) > 0 {
		fmt.Fprintf(f.writer, "\nRunner output:\n%s\n", result.Outcome.Output)
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("apiregress"), version)
}
