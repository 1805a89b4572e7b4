package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/opportunity-intake/internal/sweeper"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire opportunities whose deadline has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		n, err := sweeper.New(st, cfg.Sweeper.Schedule).RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d opportunities\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(expireCmd)
}
