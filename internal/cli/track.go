package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spf13/cobra"

	"github.com/vietddude/blockwatch/internal/control"
	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/indexing/emitter"
	"github.com/vietddude/blockwatch/internal/indexing/tracker"
	"github.com/vietddude/blockwatch/internal/infra/chain/bitcoin"
)

var (
	trackReference     string
	trackConfirmations int
	trackRemove        bool
)

var trackTxCmd = &cobra.Command{
	Use:   "track-tx [txid]",
	Short: "Publish an event once a transaction reaches the required depth",
	Args:  cobra.ExactArgs(1),
	Run:   runTrackTx,
}

var trackAddressCmd = &cobra.Command{
	Use:   "track-address [address...]",
	Short: "Publish events for payments received by addresses",
	Args:  cobra.MinimumNArgs(1),
	Run:   runTrackAddress,
}

func init() {
	for _, cmd := range []*cobra.Command{trackTxCmd, trackAddressCmd} {
		cmd.Flags().StringVar(&trackReference, "reference", "", "caller reference echoed in events")
		cmd.Flags().IntVar(&trackConfirmations, "confirmations", 0, "required confirmations (default 6)")
		cmd.Flags().BoolVar(&trackRemove, "remove", false, "stop tracking instead")
		rootCmd.AddCommand(cmd)
	}
}

func runTrackTx(cmd *cobra.Command, args []string) {
	hash, err := chainhash.NewHashFromStr(args[0])
	if err != nil {
		fmt.Printf("Invalid transaction id: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()
	stores := openStores(ctx, cfg)
	defer func() {
		_ = stores.Close()
	}()

	if trackRemove {
		if err := stores.Tracked.Delete(ctx, *hash); err != nil {
			slog.Error("Failed to untrack transaction", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Stopped tracking %s\n", hash)
		return
	}

	err = stores.Tracked.Save(ctx, &domain.TrackedTransaction{
		TxHash:                *hash,
		Reference:             trackReference,
		RequiredConfirmations: trackConfirmations,
		CreatedAt:             time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to track transaction", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Tracking %s\n", hash)
}

// normalizeAddress checks address belongs to params and returns its
// canonical encoding.
func normalizeAddress(address string, params *chaincfg.Params) (string, error) {
	decoded, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}
	if !decoded.IsForNet(params) {
		return "", fmt.Errorf("address %q is not for %s", address, params.Name)
	}
	return decoded.EncodeAddress(), nil
}

func runTrackAddress(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	params, err := bitcoin.Params(cfg.Node.Network)
	if err != nil {
		slog.Error("Invalid network", "error", err)
		os.Exit(1)
	}
	addresses := make([]string, 0, len(args))
	for _, arg := range args {
		address, err := normalizeAddress(arg, params)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		addresses = append(addresses, address)
	}

	ctx := context.Background()
	stores := openStores(ctx, cfg)
	defer func() {
		_ = stores.Close()
	}()

	if err := trackAddresses(ctx, stores, params, addresses, trackRemove); err != nil {
		slog.Error("Failed to update tracked addresses", "error", err)
		os.Exit(1)
	}
	verb := "Tracking"
	if trackRemove {
		verb = "Stopped tracking"
	}
	for _, address := range addresses {
		fmt.Printf("%s %s\n", verb, address)
	}
}

// trackAddresses registers or unregisters addresses through a balance tracker
// over stores.
func trackAddresses(ctx context.Context, stores *control.Stores, params *chaincfg.Params, addresses []string, remove bool) error {
	t := tracker.NewBalanceTracker(stores.BalanceWatches, stores.Wallets, params, emitter.NewLogEmitter(nil), nil)
	if remove {
		return t.Unwatch(ctx, addresses...)
	}

	now := time.Now().UTC()
	wallets := make([]*domain.WalletAddress, len(addresses))
	for i, address := range addresses {
		wallets[i] = &domain.WalletAddress{
			Address:               address,
			Reference:             trackReference,
			RequiredConfirmations: trackConfirmations,
			CreatedAt:             now,
		}
	}
	return t.Watch(ctx, wallets...)
}
