package cli

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/blockwatch/internal/control"
	"github.com/vietddude/blockwatch/internal/infra/storage/postgres"
)

func TestNormalizeAddress(t *testing.T) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	encoded := addr.EncodeAddress()

	got, err := normalizeAddress(encoded, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	assert.Equal(t, encoded, got)

	_, err = normalizeAddress(encoded, &chaincfg.MainNetParams)
	assert.Error(t, err)

	_, err = normalizeAddress("not-an-address", &chaincfg.RegressionNetParams)
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"status", "track-tx", "track-address"} {
		assert.True(t, names[want], want)
	}
}

func TestTrackAddresses(t *testing.T) {
	ctx := context.Background()
	stores, err := control.OpenStores(ctx, postgres.Config{})
	require.NoError(t, err)

	params := &chaincfg.RegressionNetParams
	a, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), params)
	require.NoError(t, err)
	b, err := btcutil.NewAddressPubKeyHash(make([]byte, 20), params)
	require.NoError(t, err)

	trackReference, trackConfirmations = "cold-wallet", 3
	t.Cleanup(func() { trackReference, trackConfirmations = "", 0 })

	require.NoError(t, trackAddresses(ctx, stores, params, []string{a.EncodeAddress(), b.EncodeAddress()}, false))
	all, err := stores.Wallets.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, w := range all {
		assert.Equal(t, "cold-wallet", w.Reference)
		assert.Equal(t, 3, w.RequiredConfirmations)
	}

	require.NoError(t, trackAddresses(ctx, stores, params, []string{a.EncodeAddress()}, true))
	all, err = stores.Wallets.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.EncodeAddress(), all[0].Address)
}
