package cli

import (
	"github.com/spf13/cobra"
)

// StageOptions are the flags of the single-stage commands.
type StageOptions struct {
	*GlobalOptions
	Table string
	Date  string
}

func addDateFlag(cmd *cobra.Command, opts *StageOptions) {
	cmd.Flags().StringVarP(&opts.Date, "date", "d", "", "Execution date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
}

func addTableFlag(cmd *cobra.Command, opts *StageOptions) {
	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "Table name from the catalog")
	_ = cmd.MarkFlagRequired("table")
}

func NewExtractCmd(global *GlobalOptions) *cobra.Command {
	opts := &StageOptions{GlobalOptions: global}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract one table for one day into the raw bucket",
		RunE: func(c *cobra.Command, args []string) error {
			return runExtract(c, opts)
		},
	}
	addTableFlag(cmd, opts)
	addDateFlag(cmd, opts)
	return cmd
}

func NewCleanCmd(global *GlobalOptions) *cobra.Command {
	opts := &StageOptions{GlobalOptions: global}
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean one raw partition into the clean bucket",
		RunE: func(c *cobra.Command, args []string) error {
			return runClean(c, opts)
		},
	}
	addTableFlag(cmd, opts)
	addDateFlag(cmd, opts)
	return cmd
}

func NewAggregateCmd(global *GlobalOptions) *cobra.Command {
	opts := &StageOptions{GlobalOptions: global}
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Count consultations per day into the aggregated bucket",
		RunE: func(c *cobra.Command, args []string) error {
			return runAggregate(c, opts)
		},
	}
	addDateFlag(cmd, opts)
	return cmd
}

func NewLoadCmd(global *GlobalOptions) *cobra.Command {
	opts := &StageOptions{GlobalOptions: global}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load clean partitions into the warehouse",
	}
	cmd.PersistentFlags().StringVarP(&opts.Date, "date", "d", "", "Execution date (YYYY-MM-DD)")
	_ = cmd.MarkPersistentFlagRequired("date")

	dimensions := &cobra.Command{
		Use:   "dimensions",
		Short: "Load every dimension table",
		RunE: func(c *cobra.Command, args []string) error {
			return runLoad(c, opts, loadDimensions)
		},
	}

	facts := &cobra.Command{
		Use:   "facts",
		Short: "Load every fact table",
		RunE: func(c *cobra.Command, args []string) error {
			return runLoad(c, opts, loadFacts)
		},
	}

	cmd.AddCommand(dimensions, facts)
	return cmd
}

// RunOptions are the flags of the run command.
type RunOptions struct {
	StageOptions
	DryRun bool
}

func NewRunCmd(global *GlobalOptions) *cobra.Command {
	opts := &RunOptions{StageOptions: StageOptions{GlobalOptions: global}}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage for one day",
		Long: `Run extracts and cleans every dimension then every fact table, aggregates
the consultations and loads the warehouse.

With --dry-run the partitions are kept in memory and nothing is loaded, the
run ledger is left alone and only the source database is contacted.`,
		RunE: func(c *cobra.Command, args []string) error {
			return runPipeline(c, opts)
		},
	}
	addDateFlag(cmd, &opts.StageOptions)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Keep partitions in memory and skip the warehouse load")
	return cmd
}

func NewHistoryCmd(global *GlobalOptions) *cobra.Command {
	opts := &StageOptions{GlobalOptions: global}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the recorded stage outcomes of one day",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return showHistory(c, opts)
		},
	}
	addDateFlag(cmd, opts)
	return cmd
}

func NewUnlockCmd(global *GlobalOptions) *cobra.Command {
	opts := &StageOptions{GlobalOptions: global}
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove the run lock of one day left behind by a crashed run",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return unlockDate(c, opts)
		},
	}
	addDateFlag(cmd, opts)
	return cmd
}

func NewTablesCmd(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return listTables(c, global)
		},
	}
}
