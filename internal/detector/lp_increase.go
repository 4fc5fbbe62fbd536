package detector

import (
	"github.com/shopspring/decimal"

	"github.com/accumwatch/engine/internal/storage"
)

// LPIncrease fires when liquidity-pool addresses gain more than
// LPInflowThreshold of the token net of withdrawals. Deepening liquidity
// ahead of price movement is a classic accumulation tell.
type LPIncrease struct{}

func (d *LPIncrease) Type() storage.SignalType {
	return storage.SignalLPIncrease
}

func (d *LPIncrease) Detect(in Input) *Candidate {
	inflow := decimal.Zero
	outflow := decimal.Zero
	txCount := 0
	providers := newOrderedSet()

	for i := range in.Transfers {
		tr := &in.Transfers[i]
		toLP := in.Wallets.IsLiquidityPool(tr.ToAddress)
		fromLP := in.Wallets.IsLiquidityPool(tr.FromAddress)

		switch {
		case toLP && !fromLP:
			inflow = inflow.Add(tr.Amount)
			txCount++
			providers.add(tr.FromAddress)
		case fromLP && !toLP:
			outflow = outflow.Add(tr.Amount)
		}
	}

	net := inflow.Sub(outflow)
	threshold := in.Thresholds.LPInflowThreshold
	netVol, _ := net.Float64()
	if netVol <= threshold || txCount == 0 {
		return nil
	}

	return &Candidate{
		Type:             d.Type(),
		Score:            score(in.Thresholds, netVol, threshold, providers.len()),
		WalletsInvolved:  providers.items,
		TransactionCount: txCount,
		TotalVolume:      inflow,
		AverageBuySize:   averageBuySize(inflow, txCount),
	}
}
