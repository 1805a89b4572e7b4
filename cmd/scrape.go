package main

import (
	"encoding/json"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/scrape"
	"github.com/sells-group/opportunity-intake/internal/submission"
)

var (
	scrapeStrategy string
	scrapeSelector string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Run the scrape chain against a URL and print every attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scrape"); err != nil {
			return err
		}
		u, err := submission.ValidateURL(args[0])
		if err != nil {
			return err
		}
		force := model.Method(scrapeStrategy)
		if force != "" && !slices.Contains(model.StrategyOrder, force) {
			return eris.Errorf("unknown strategy %q (want static, browser_a or browser_b)", scrapeStrategy)
		}

		orch := initOrchestrator()
		defer orch.Close()

		res := orch.Scrape(cmd.Context(), u, scrape.Options{Force: force, WaitSelector: scrapeSelector})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeStrategy, "strategy", "", "run only this strategy: static, browser_a, browser_b")
	scrapeCmd.Flags().StringVar(&scrapeSelector, "wait-selector", "", "CSS selector the browsers wait for")
	rootCmd.AddCommand(scrapeCmd)
}
