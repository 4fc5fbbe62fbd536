package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignalType(t *testing.T) {
	for _, valid := range []string{
		"WHALE_INFLOW", "EXCHANGE_OUTFLOW", "CONCENTRATED_BUYS",
		"HOLDING_PATTERNS", "LP_INCREASE",
	} {
		got, err := ParseSignalType(valid)
		require.NoError(t, err)
		assert.Equal(t, SignalType(valid), got)
	}

	_, err := ParseSignalType("PUMP_AND_DUMP")
	assert.Error(t, err, "unknown types are rejected at the storage-read boundary")

	_, err = ParseSignalType("whale_inflow")
	assert.Error(t, err, "signal types are case sensitive")
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeAddress("0xABCdef"))
	assert.Equal(t, "0xabc", NormalizeAddress("  0xAbC "))
}

func TestWalletLabels(t *testing.T) {
	exchange := Wallet{Label: "exchange:binance"}
	assert.True(t, exchange.IsExchange())
	assert.False(t, exchange.IsLiquidityPool())

	lp := Wallet{Label: "lp:uniswap-v3"}
	assert.True(t, lp.IsLiquidityPool())
	assert.False(t, lp.IsExchange())

	plain := Wallet{Label: ""}
	assert.False(t, plain.IsExchange())
	assert.False(t, plain.IsLiquidityPool())
}

func TestSignalWalletsRoundTrip(t *testing.T) {
	var sig AccumulationSignal
	addrs := []string{"0xaaa", "0xbbb", "0xccc"}

	sig.SetWallets(addrs)
	assert.Equal(t, addrs, sig.Wallets(), "order preserved")

	sig.SetWallets(nil)
	assert.Empty(t, sig.Wallets())

	sig.WalletsInvolved = "{not json"
	assert.Nil(t, sig.Wallets())
}

func TestTokenAgeDays(t *testing.T) {
	now := time.Now()

	fresh := Token{CreatedTS: now.Add(-36 * time.Hour).Unix()}
	assert.Equal(t, 1, fresh.AgeDays(now))

	unset := Token{}
	assert.Equal(t, 0, unset.AgeDays(now))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, IsConflict(ErrConflict))
	assert.False(t, IsConflict(ErrMalformedTransfer))

	te := &TransientError{Op: "get_transfers", Err: assert.AnError}
	assert.True(t, IsTransient(te))
	assert.False(t, IsTransient(ErrConflict))
	assert.ErrorIs(t, te, assert.AnError)
}
