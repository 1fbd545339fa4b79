package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apiregress/packages/core/runner"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the Postman collection without running it",
	Long: `Normalize the test cases and write the Postman collection. Nothing is
executed and no authentication call is made, so the collection carries no
token.

Examples:
  apiregress generate
  apiregress generate --openapi api.yaml --output-dir out`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          generateCommand,
}

func generateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fail(cmd, err)
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	res, err := runner.NewRunner(cfg, runner.WithLogger(log)).Generate(cmd.Context())
	if err != nil {
		return fail(cmd, err)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	w := cmd.OutOrStdout()
	for _, skipped := range res.Skipped {
		fmt.Fprintf(w, "%s %v\n", yellow("skipped"), skipped)
	}
	for _, bf := range res.BuildFailures {
		fmt.Fprintf(w, "%s %v\n", yellow("not built"), bf)
	}
	fmt.Fprintf(w, "Source:     %s\n", res.Source)
	fmt.Fprintf(w, "Cases:      %d\n", len(res.Cases))
	fmt.Fprintf(w, "Items:      %d\n", res.Collection.Len())
	fmt.Fprintf(w, "Collection: %s\n", res.CollectionPath)
	return nil
}
