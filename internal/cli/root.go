package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/sante-etl/pkg/logger"
)

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	CatalogFile string
	LogLevel    string
	LogFile     string
}

func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "sante-etl",
		Short: "sante-etl - daily healthcare data pipeline",
		Long: `sante-etl moves one day of the operational healthcare database into the warehouse.
Each table is extracted to a raw parquet partition, cleaned into a clean partition,
aggregated for consultations and finally loaded into the star schema.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.InitLogger(firstNonEmpty(opts.LogFile, envOr("LOG_FILE", "")), firstNonEmpty(opts.LogLevel, envOr("LOG_LEVEL", "info")))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.CatalogFile, "catalog", "c", "", "Path to table catalog YAML (default: built-in catalog, or CATALOG_FILE)")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (default: LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "Also write logs to this file")

	rootCmd.AddCommand(
		NewExtractCmd(opts),
		NewCleanCmd(opts),
		NewAggregateCmd(opts),
		NewLoadCmd(opts),
		NewRunCmd(opts),
		NewTablesCmd(opts),
		NewHistoryCmd(opts),
		NewUnlockCmd(opts),
	)

	return rootCmd
}
