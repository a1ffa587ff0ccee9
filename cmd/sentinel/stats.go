package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"PriceSentinel/internal/performance"
)

func statsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show performance statistics and every tracked position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			positions, err := s.FindAll(cmd.Context())
			if err != nil {
				return err
			}
			stats := performance.Compute(positions)
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			fmt.Fprintf(out, "total=%d active=%d exited=%d accuracy=%.2f%% wins=%d losses=%d avg_win=%.2f%% avg_loss=%.2f%% avg_downside=%.2f%%\n\n",
				stats.TotalPositions, stats.ActivePositions, stats.ExitedPositions, stats.AccuracyRatio,
				stats.WinningCalls, stats.LosingCalls, stats.AvgWinningReturn, stats.AvgLosingReturn, stats.AvgDownside)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSYMBOL\tSTATUS\tENTRY\tTARGET\tSL\tPRICE\tRETURN\tPOTENTIAL")
			for _, p := range positions {
				e := performance.Enrich(p)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.Symbol, e.Status,
					e.EntryZone, e.Target, e.StopLoss, num(e.CurrentPrice), num(e.ReturnPct), num(e.PotentialPct))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print statistics as JSON")
	return cmd
}

func lookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <query>",
		Short: "Resolve a company name to its NSE symbol and show its quote",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			nse := a.nseFetcher()

			query := args[0]
			for _, w := range args[1:] {
				query += " " + w
			}
			sym, err := nse.Search(ctx, query)
			if err != nil {
				return fmt.Errorf("lookup %q: %w", query, err)
			}
			q, err := a.fetcher(ctx).FetchQuote(ctx, sym)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t(no quote: %v)\n", sym, err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tprice=%s\thigh=%s\tlow=%s\tchange=%s (%s%%)\n",
				sym, num(q.Price), num(q.High), num(q.Low), num(q.Change), num(q.PercentChange))
			return nil
		},
	}
}
