package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patrikhermansson/colsel/core"
	"github.com/patrikhermansson/colsel/example"
	"github.com/patrikhermansson/colsel/grouplasso"
	"github.com/patrikhermansson/colsel/swap"
)

var (
	selectInput    string
	selectK        int
	selectMethod   string
	selectRestarts int
	selectSeed     uint64
	selectHeader   bool
	selectNA       []string
	selectPath     int

	selectCmd = &cobra.Command{
		Use:   "select",
		Short: "Select k columns of a CSV dataset",
		Args:  cobra.NoArgs,
		RunE:  runSelect,
	}
)

func init() {
	f := selectCmd.Flags()
	f.StringVarP(&selectInput, "input", "i", "", "CSV file with one column per variable")
	f.IntVarP(&selectK, "k", "k", 3, "number of columns to select")
	f.StringVarP(&selectMethod, "method", "m", swap.Method, "selector: swap, bomp or grouplasso")
	f.IntVar(&selectRestarts, "restarts", swap.DefaultRestarts, "swap restarts")
	f.Uint64Var(&selectSeed, "seed", 0, "random seed (0 reads "+core.SeedEnv+" or the clock)")
	f.BoolVar(&selectHeader, "header", false, "skip the first CSV row")
	f.StringSliceVar(&selectNA, "na", example.DefaultNA, "cell values read as missing")
	f.IntVar(&selectPath, "path", 0, "with grouplasso, also print the active-set size at this many penalty steps")
	_ = selectCmd.MarkFlagRequired("input")
}

func runSelect(cmd *cobra.Command, _ []string) error {
	seed := selectSeed
	if seed == 0 {
		seed = core.GetSeed()
	}
	runner := example.NewRunner()
	runner.Restarts = selectRestarts

	if _, err := example.RunDataset(cmd.Context(), runner, selectInput, selectHeader, selectNA, selectMethod, selectK, seed); err != nil {
		return err
	}

	if selectMethod == grouplasso.Method && selectPath > 0 {
		d, err := example.LoadCSV(selectInput, selectHeader, selectNA)
		if err != nil {
			return err
		}
		lambdas, counts, err := example.LassoPath(cmd.Context(), d, selectPath)
		if err != nil {
			return err
		}
		fmt.Println("Lasso path (lambda -> active predictors):")
		for i := range lambdas {
			fmt.Printf("  %12.6g  %d\n", lambdas[i], counts[i])
		}
	}
	return nil
}
