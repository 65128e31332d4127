package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the synced tip and active watches",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	stores := openStores(ctx, cfg)
	defer func() {
		_ = stores.Close()
	}()

	tip, err := stores.Blocks.GetLatest(ctx)
	if err != nil {
		slog.Error("Failed to get stored tip", "error", err)
		os.Exit(1)
	}
	txWatches, err := stores.TxWatches.Count(ctx)
	if err != nil {
		slog.Error("Failed to count transaction watches", "error", err)
		os.Exit(1)
	}
	balanceWatches, err := stores.BalanceWatches.Count(ctx)
	if err != nil {
		slog.Error("Failed to count balance watches", "error", err)
		os.Exit(1)
	}
	tracked, err := stores.Tracked.GetAll(ctx)
	if err != nil {
		slog.Error("Failed to list tracked transactions", "error", err)
		os.Exit(1)
	}
	wallets, err := stores.Wallets.GetAll(ctx)
	if err != nil {
		slog.Error("Failed to list wallets", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	if tip != nil {
		_, _ = fmt.Fprintf(w, "TIP\t%d\t%s\n", tip.Height, tip.Hash)
	} else {
		_, _ = fmt.Fprintln(w, "TIP\t-\t-")
	}
	_, _ = fmt.Fprintf(w, "TRANSACTION WATCHES\t%d\n", txWatches)
	_, _ = fmt.Fprintf(w, "BALANCE WATCHES\t%d\n", balanceWatches)
	_, _ = fmt.Fprintf(w, "TRACKED TRANSACTIONS\t%d\n", len(tracked))
	_, _ = fmt.Fprintf(w, "WALLET ADDRESSES\t%d\n", len(wallets))
	_ = w.Flush()
}
