package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "apiregress",
	Short: "API regression runs from spreadsheets and OpenAPI specs.",
	Long: `apiregress turns a test-case spreadsheet or an OpenAPI document into a
Postman collection, runs it with newman, and writes the verdict of every
case back into an Excel workbook.`,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFlag, "config", getEnvString("APIREGRESS_CONFIG", ""), "Path to config file (env: APIREGRESS_CONFIG)")
	flags.StringVar(&excelFlag, "excel", getEnvString("APIREGRESS_EXCEL", ""), "Test-case workbook, overrides excel_path (env: APIREGRESS_EXCEL)")
	flags.StringVar(&openapiFlag, "openapi", getEnvString("APIREGRESS_OPENAPI", ""), "OpenAPI document path or URL, overrides openapi.spec (env: APIREGRESS_OPENAPI)")
	flags.StringVar(&outputDirFlag, "output-dir", getEnvString("APIREGRESS_OUTPUT_DIR", ""), "Directory for the collection and results workbook (env: APIREGRESS_OUTPUT_DIR)")
	flags.BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("APIREGRESS_VERBOSE", false), "Verbose output (env: APIREGRESS_VERBOSE)")
	flags.BoolVar(&noColorFlag, "no-color", getEnvBool("APIREGRESS_NO_COLOR", false), "Disable colored output (env: APIREGRESS_NO_COLOR)")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}
