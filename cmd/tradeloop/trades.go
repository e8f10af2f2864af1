package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tradeloop/internal/market"
	"tradeloop/internal/store"
	"tradeloop/internal/store/sqlite"
)

func newTradesCmd(opts *rootOptions) *cobra.Command {
	var (
		symbol string
		limit  int
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recorded trades, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			ledger, err := sqlite.NewSqliteStore(cfg.Store.LedgerPath)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer ledger.Close()

			q := store.TradeQuery{Symbol: market.NormalizeSymbol(symbol), Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			rows, err := ledger.ListTrades(ctx, q)
			if err != nil {
				return err
			}
			if err := printTrades(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
			now := time.Now()
			midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			today, err := ledger.CountTradesSince(ctx, midnight)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d trade(s) today across all symbols\n", today)
			return err
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only this symbol")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")
	cmd.Flags().DurationVar(&since, "since", 0, "only trades newer than this (e.g. 24h)")
	return cmd
}

func printTrades(w io.Writer, rows []store.TradeRecord) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no trades recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSYMBOL\tSIDE\tQTY\tPRICE\tSTRATEGY\tSTATUS\tREASON")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%.2f\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Symbol, r.Side,
			r.Quantity, r.Price, r.StrategyTag, r.Status, r.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d trade(s)\n", len(rows))
	return err
}
