package detector

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accumwatch/engine/internal/config"
	"github.com/accumwatch/engine/internal/storage"
)

const (
	whaleA    = "0xaaa1000000000000000000000000000000000001"
	whaleB    = "0xaaa2000000000000000000000000000000000002"
	exchangeA = "0xeee1000000000000000000000000000000000001"
	exchangeB = "0xeee2000000000000000000000000000000000002"
	lpA       = "0xccc1000000000000000000000000000000000001"
	retailA   = "0xbbb1000000000000000000000000000000000001"
	retailB   = "0xbbb2000000000000000000000000000000000002"
	retailC   = "0xbbb3000000000000000000000000000000000003"
)

func testThresholds() config.Thresholds {
	return config.Thresholds{
		SignalThreshold:              60,
		WhaleInflowScoreFloor:        80,
		ConcentratedBuysScoreFloor:   70,
		WhaleBuyThreshold:            1000,
		WhaleSellThreshold:           1000,
		ExchangeDepositThreshold:     500,
		ExchangeWithdrawalThreshold:  500,
		LPInflowThreshold:            500,
		BreakoutVolumeThreshold:      2.0,
		BreakoutPriceChangeThreshold: 0.15,
		ConcentrationGini:            0.6,
		ConcentratedBuysMinVolume:    500,
		HoldRatio:                    0.8,
		HoldingMinVolume:             500,
		MinBuyTransfers:              3,
		AlertScoreFloor:              75,
		SmartWalletScore:             70,
	}
}

func testIndex() *WalletIndex {
	return NewWalletIndex([]storage.Wallet{
		{ID: 1, Address: whaleA, Tracked: true},
		{ID: 2, Address: whaleB, Tracked: true},
		{ID: 3, Address: exchangeA, Label: "exchange:binance"},
		{ID: 4, Address: exchangeB, Label: "exchange:kraken"},
		{ID: 5, Address: lpA, Label: "lp:uniswap-v3"},
	})
}

func transfer(from, to string, amount int64, ts int64) storage.Transfer {
	return storage.Transfer{
		TxHash:       fmt.Sprintf("0x%s-%s-%d-%d", from[2:6], to[2:6], amount, ts),
		TokenID:      1,
		FromAddress:  from,
		ToAddress:    to,
		Amount:       decimal.NewFromInt(amount),
		TimestampSec: ts,
	}
}

func input(transfers ...storage.Transfer) Input {
	return Input{
		Token:      &storage.Token{ID: 1, Chain: "ethereum", Symbol: "TKN"},
		Window:     Window{Start: 0, End: 100000},
		Transfers:  transfers,
		Wallets:    testIndex(),
		Thresholds: testThresholds(),
	}
}

func TestWhaleInflowFiresWithExactWalletSet(t *testing.T) {
	// Three buys landing in two tracked wallets, clearing the threshold.
	in := input(
		transfer(exchangeA, whaleA, 500, 10),
		transfer(retailA, whaleB, 400, 20),
		transfer(exchangeB, whaleA, 300, 30),
	)

	c := (&WhaleInflow{}).Detect(in)

	require.NotNil(t, c)
	assert.Equal(t, storage.SignalWhaleInflow, c.Type)
	assert.Equal(t, 3, c.TransactionCount)
	assert.Equal(t, []string{whaleA, whaleB}, c.WalletsInvolved)
	assert.True(t, c.TotalVolume.Equal(decimal.NewFromInt(1200)))
	assert.True(t, c.AverageBuySize.Equal(decimal.NewFromInt(400)))
}

func TestWhaleInflowBelowThresholdIsSilent(t *testing.T) {
	in := input(
		transfer(exchangeA, whaleA, 400, 10),
		transfer(retailA, whaleB, 300, 20),
	)

	assert.Nil(t, (&WhaleInflow{}).Detect(in))
}

func TestWhaleInflowExactThresholdIsSilent(t *testing.T) {
	// The trigger is strictly more than the threshold, not at it.
	in := input(transfer(exchangeA, whaleA, 1000, 10))
	assert.Nil(t, (&WhaleInflow{}).Detect(in))

	over := input(transfer(exchangeA, whaleA, 1001, 10))
	assert.NotNil(t, (&WhaleInflow{}).Detect(over))
}

func TestWhaleInflowIgnoresWhaleToWhaleShuffles(t *testing.T) {
	in := input(
		transfer(whaleA, whaleB, 5000, 10),
		transfer(retailA, whaleA, 200, 20),
	)

	assert.Nil(t, (&WhaleInflow{}).Detect(in))
}

func TestWhaleInflowEmptyWindow(t *testing.T) {
	assert.Nil(t, (&WhaleInflow{}).Detect(input()))
}

func TestWhaleInflowScoreMonotoneInVolume(t *testing.T) {
	small := (&WhaleInflow{}).Detect(input(
		transfer(exchangeA, whaleA, 1200, 10),
	))
	large := (&WhaleInflow{}).Detect(input(
		transfer(exchangeA, whaleA, 3000, 10),
	))

	require.NotNil(t, small)
	require.NotNil(t, large)
	assert.Greater(t, large.Score, small.Score)
}

func TestExchangeOutflowFires(t *testing.T) {
	in := input(
		transfer(exchangeA, retailA, 300, 10),
		transfer(exchangeB, retailB, 400, 20),
		transfer(exchangeA, exchangeB, 9999, 30), // inter-exchange, ignored
	)

	c := (&ExchangeOutflow{}).Detect(in)

	require.NotNil(t, c)
	assert.Equal(t, storage.SignalExchangeOutflow, c.Type)
	assert.Equal(t, 2, c.TransactionCount)
	assert.Equal(t, []string{retailA, retailB}, c.WalletsInvolved)
	assert.True(t, c.TotalVolume.Equal(decimal.NewFromInt(700)))
}

func TestExchangeOutflowBelowThresholdIsSilent(t *testing.T) {
	in := input(transfer(exchangeA, retailA, 300, 10))
	assert.Nil(t, (&ExchangeOutflow{}).Detect(in))
}

func TestExchangeOutflowExactThresholdIsSilent(t *testing.T) {
	in := input(transfer(exchangeA, retailA, 500, 10))
	assert.Nil(t, (&ExchangeOutflow{}).Detect(in))
}

func TestConcentratedBuysFiresOnSkewedVolume(t *testing.T) {
	// One buyer takes almost all volume across enough transfers.
	in := input(
		transfer(exchangeA, retailA, 800, 10),
		transfer(exchangeA, retailA, 700, 20),
		transfer(exchangeB, retailB, 10, 30),
		transfer(exchangeB, retailC, 10, 40),
	)

	c := (&ConcentratedBuys{}).Detect(in)

	require.NotNil(t, c)
	assert.Equal(t, storage.SignalConcentratedBuys, c.Type)
	assert.Equal(t, 4, c.TransactionCount)
	assert.Contains(t, c.WalletsInvolved, retailA)
}

func TestConcentratedBuysEvenSplitIsSilent(t *testing.T) {
	in := input(
		transfer(exchangeA, retailA, 400, 10),
		transfer(exchangeA, retailB, 400, 20),
		transfer(exchangeB, retailC, 400, 30),
	)

	assert.Nil(t, (&ConcentratedBuys{}).Detect(in))
}

func TestConcentratedBuysNeedsEnoughTransfers(t *testing.T) {
	in := input(
		transfer(exchangeA, retailA, 2000, 10),
		transfer(exchangeB, retailB, 10, 20),
	)

	assert.Nil(t, (&ConcentratedBuys{}).Detect(in))
}

func TestGini(t *testing.T) {
	assert.Equal(t, 0.0, gini(nil))
	assert.InDelta(t, 0.0, gini(map[string]float64{"a": 100, "b": 100}), 0.001)

	skewed := gini(map[string]float64{"a": 1000, "b": 1, "c": 1, "d": 1})
	assert.Greater(t, skewed, 0.7)
}

func TestHoldingPatternsFiresWhenBuyersHold(t *testing.T) {
	// Both buyers accumulate repeatedly and never sell.
	in := input(
		transfer(exchangeA, retailA, 300, 10),
		transfer(exchangeA, retailA, 300, 20),
		transfer(exchangeB, retailB, 200, 30),
		transfer(exchangeB, retailB, 100, 40),
	)

	c := (&HoldingPatterns{}).Detect(in)

	require.NotNil(t, c)
	assert.Equal(t, storage.SignalHoldingPatterns, c.Type)
	assert.Equal(t, []string{retailA, retailB}, c.WalletsInvolved)
	assert.True(t, c.TotalVolume.Equal(decimal.NewFromInt(900)))
}

func TestHoldingPatternsSellingBreaksTheSignal(t *testing.T) {
	// The dominant buyer distributes back out in-window.
	in := input(
		transfer(exchangeA, retailA, 600, 10),
		transfer(retailA, exchangeA, 600, 20),
		transfer(exchangeB, retailB, 100, 30),
	)

	assert.Nil(t, (&HoldingPatterns{}).Detect(in))
}

func TestLPIncreaseFiresOnNetInflow(t *testing.T) {
	in := input(
		transfer(retailA, lpA, 700, 10),
		transfer(lpA, retailB, 100, 20),
	)

	c := (&LPIncrease{}).Detect(in)

	require.NotNil(t, c)
	assert.Equal(t, storage.SignalLPIncrease, c.Type)
	assert.Equal(t, 1, c.TransactionCount)
	assert.Equal(t, []string{retailA}, c.WalletsInvolved)
	assert.True(t, c.TotalVolume.Equal(decimal.NewFromInt(700)))
}

func TestLPIncreaseWithdrawalsOffsetDeposits(t *testing.T) {
	in := input(
		transfer(retailA, lpA, 700, 10),
		transfer(lpA, retailB, 400, 20),
	)

	assert.Nil(t, (&LPIncrease{}).Detect(in))
}

func TestLPIncreaseExactThresholdIsSilent(t *testing.T) {
	in := input(transfer(retailA, lpA, 500, 10))
	assert.Nil(t, (&LPIncrease{}).Detect(in))
}

func TestAllDetectorScoresStayInBand(t *testing.T) {
	// A busy window that trips every detector at once.
	transfers := []storage.Transfer{
		transfer(exchangeA, whaleA, 50000, 10),
		transfer(exchangeB, whaleB, 40000, 20),
		transfer(exchangeA, retailA, 30000, 30),
		transfer(exchangeA, retailA, 20000, 35),
		transfer(exchangeB, retailB, 10, 40),
		transfer(retailC, lpA, 20000, 50),
	}
	in := input(transfers...)

	for _, d := range All() {
		c := d.Detect(in)
		if c == nil {
			continue
		}
		assert.GreaterOrEqual(t, c.Score, in.Thresholds.SignalThreshold, "%s", d.Type())
		assert.LessOrEqual(t, c.Score, 95.0, "%s", d.Type())
	}
}

func TestAllReturnsFiveDistinctDetectors(t *testing.T) {
	seen := make(map[storage.SignalType]bool)
	for _, d := range All() {
		seen[d.Type()] = true
	}
	assert.Len(t, seen, 5)
}
