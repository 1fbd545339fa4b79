package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apiregress/packages/collection"
	"github.com/abdul-hamid-achik/apiregress/packages/normalize"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config and the test-case input",
	Long: `Validate the configuration, normalize the input and build the collection
in memory without writing or executing anything. Every skipped record and
every case that cannot be built is reported.

Examples:
  apiregress validate
  apiregress validate --excel cases.xlsx`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Valid: configuration\n")

	norm, err := normalize.New(normalize.WithLogger(log)).Load(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	problems := 0
	for _, skipped := range norm.Skipped {
		fmt.Fprintf(cmd.OutOrStderr(), "Skipped: %v\n", skipped)
		problems++
	}

	b := collection.NewBuilder(
		collection.WithName(cfg.CollectionName),
		collection.WithGatewayBaseURL(cfg.GatewayBaseURL),
		collection.WithDefaultHeaders(cfg.Headers),
		collection.WithLogger(log),
	)
	coll, failures := b.Build(norm.Cases)
	for _, bf := range failures {
		fmt.Fprintf(cmd.OutOrStderr(), "Error in %v\n", bf)
		problems++
	}
	data, err := coll.Marshal()
	if err != nil {
		return fmt.Errorf("encoding collection: %w", err)
	}
	if err := collection.Validate(data); err != nil {
		return err
	}

	fmt.Fprintf(w, "Valid: %s (%d cases, %d endpoints, %d items)\n",
		norm.Source, len(norm.Cases), len(norm.Endpoints), coll.Len())

	if problems > 0 {
		return fmt.Errorf("validation found %d problem(s)", problems)
	}
	return nil
}
