package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"PriceSentinel/internal/performance"
)

func refreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [id]",
		Short: "Refresh every position once, or a single position by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := a.refresher(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				p, err := r.RefreshOne(ctx, args[0])
				if err != nil {
					return err
				}
				e := performance.Enrich(*p)
				fmt.Fprintf(out, "%s\t%s\tprice=%s\treturn=%s\n", e.Symbol, e.Status, num(e.CurrentPrice), num(e.ReturnPct))
				return nil
			}

			start := time.Now()
			res, err := r.RefreshAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "updated=%d errors=%d skipped=%d took=%s\n",
				res.Updated, res.Errors, res.Skipped, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func promoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Archive exit positions older than the promotion window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.refresher(cmd.Context())
			if err != nil {
				return err
			}
			res, err := r.PromoteExpiredExits(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "moved=%d\n", res.Moved)
			return err
		},
	}
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
