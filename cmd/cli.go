package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "colsel",
	Short: "Column subset selection on data with missing values",
	Long: `colsel picks k of p columns whose span best reconstructs the covariance
of a dataset with missing cells. It ships a multi-start swapping search and
two baselines (matching pursuit and a lasso sparsity bisection), a synthetic
data generator and a benchmark harness comparing them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(selectCmd, benchCmd, simulateCmd)
}

// Execute runs the CLI code.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
