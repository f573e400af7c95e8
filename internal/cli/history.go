package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/condasolve/condasolve/internal/solve"
)

type historyOptions struct {
	Prefix string
}

func newHistoryCommand() *cobra.Command {
	opts := historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the user-requested specs derived from a prefix's history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Target environment prefix")
	_ = viper.BindPFlag("prefix", cmd.Flags().Lookup("prefix"))
	return cmd
}

func runHistory(ctx context.Context, cmd *cobra.Command, opts historyOptions) error {
	service := newAppService()
	prefix := resolveString(cmd, opts.Prefix, "prefix", "prefix")

	entries, err := service.History.Read(ctx, prefix)
	if err != nil {
		return err
	}
	specs := solve.DeriveHistorySpecs(entries)
	if len(specs) == 0 {
		fmt.Println("no user-requested specs in history")
		return nil
	}
	for _, s := range specs {
		fmt.Println(s.ToCanonicalString())
	}
	return nil
}
