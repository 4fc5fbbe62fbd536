package performance

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/accumwatch/engine/internal/metrics"
	"github.com/accumwatch/engine/internal/storage"
)

// Side distinguishes acquisitions from disposals in a wallet's history.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one leg of a wallet's history for a single token. Quantity is in
// token units; Value is the traded notional. When the feed supplies no quote,
// Value falls back to Quantity and the resulting PnL collapses toward zero,
// which is the documented no-oracle approximation.
type Trade struct {
	TokenID   uint64
	Side      Side
	Quantity  decimal.Decimal
	Value     decimal.Decimal
	Timestamp int64
}

// Result holds the computed performance metrics for one wallet.
// Percentages are on the 0-100 scale.
type Result struct {
	TotalPnL        decimal.Decimal
	TotalPnLPercent float64
	WinRate         float64
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	AvgWin          float64
	AvgLoss         float64
}

// position tracks the running average-cost state for one token.
type position struct {
	quantity  decimal.Decimal
	costValue decimal.Decimal
}

// Calculate computes average-cost PnL over a wallet's trades. Trades must be
// in timestamp order; sells without an established cost basis contribute
// nothing. A sell closing at exactly breakeven counts as a trade but as
// neither win nor loss.
func Calculate(trades []Trade) Result {
	metrics.PerformanceCalculations.Inc()

	positions := make(map[uint64]*position)
	res := Result{TotalPnL: decimal.Zero}
	totalCostBasis := decimal.Zero
	winSum := 0.0
	lossSum := 0.0

	for i := range trades {
		tr := &trades[i]
		pos, ok := positions[tr.TokenID]
		if !ok {
			pos = &position{quantity: decimal.Zero, costValue: decimal.Zero}
			positions[tr.TokenID] = pos
		}

		switch tr.Side {
		case SideBuy:
			pos.quantity = pos.quantity.Add(tr.Quantity)
			pos.costValue = pos.costValue.Add(tr.Value)

		case SideSell:
			if pos.quantity.IsZero() || tr.Quantity.IsZero() {
				// No cost basis, nothing to score.
				continue
			}
			sellQty := tr.Quantity
			if sellQty.GreaterThan(pos.quantity) {
				sellQty = pos.quantity
			}
			avgCost := pos.costValue.Div(pos.quantity)
			cost := sellQty.Mul(avgCost)
			proceeds := tr.Value
			if !tr.Quantity.Equal(sellQty) {
				// Oversell beyond the tracked position: score only the
				// covered portion of the proceeds.
				proceeds = tr.Value.Mul(sellQty).Div(tr.Quantity)
			}
			pnl := proceeds.Sub(cost)

			res.TotalPnL = res.TotalPnL.Add(pnl)
			totalCostBasis = totalCostBasis.Add(cost)
			res.TotalTrades++

			pnlPct := 0.0
			if !cost.IsZero() {
				pnlPct, _ = pnl.Div(cost).Mul(decimal.NewFromInt(100)).Float64()
			}
			switch {
			case pnlPct > 0:
				res.WinningTrades++
				winSum += pnlPct
			case pnlPct < 0:
				res.LosingTrades++
				lossSum += -pnlPct
			}

			pos.quantity = pos.quantity.Sub(sellQty)
			pos.costValue = pos.costValue.Sub(cost)
			if pos.costValue.IsNegative() {
				pos.costValue = decimal.Zero
			}
		}
	}

	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	}
	if !totalCostBasis.IsZero() {
		res.TotalPnLPercent, _ = res.TotalPnL.Div(totalCostBasis).Mul(decimal.NewFromInt(100)).Float64()
	}
	if res.WinningTrades > 0 {
		res.AvgWin = round2(winSum / float64(res.WinningTrades))
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = round2(lossSum / float64(res.LosingTrades))
	}

	return res
}

// Score collapses a Result onto the 0-100 wallet scale. A wallet with no
// history sits at the neutral 50.
func Score(r Result) int {
	score := 50.0

	// Win rate contributes up to 30 points.
	score += r.WinRate / 100 * 30

	// PnL magnitude contributes up to 20, signed; saturates at 1000%.
	pnlMagnitude := math.Min(math.Abs(r.TotalPnLPercent), 1000) / 1000 * 20
	if r.TotalPnLPercent >= 0 {
		score += pnlMagnitude
	} else {
		score -= pnlMagnitude
	}

	// Activity contributes up to 20; saturates at 100 trades.
	score += math.Min(float64(r.TotalTrades), 100) / 100 * 20

	// Consistency bonus.
	if r.TotalTrades > 10 && r.WinRate > 60 {
		score += 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	final := int(math.Round(score))
	metrics.WalletScores.Observe(float64(final))
	return final
}

// FromTransfers maps a wallet's transfer history onto trades: inflows are
// buys, outflows sells. Transfers must already be in timestamp order.
func FromTransfers(address string, transfers []storage.Transfer) []Trade {
	addr := storage.NormalizeAddress(address)
	trades := make([]Trade, 0, len(transfers))
	for i := range transfers {
		tr := &transfers[i]
		value := tr.ValueUSD
		if !value.IsPositive() {
			value = tr.Amount
		}
		switch addr {
		case tr.ToAddress:
			trades = append(trades, Trade{
				TokenID: tr.TokenID, Side: SideBuy,
				Quantity: tr.Amount, Value: value, Timestamp: tr.TimestampSec,
			})
		case tr.FromAddress:
			trades = append(trades, Trade{
				TokenID: tr.TokenID, Side: SideSell,
				Quantity: tr.Amount, Value: value, Timestamp: tr.TimestampSec,
			})
		}
	}
	return trades
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
