package detector

import (
	"github.com/shopspring/decimal"

	"github.com/accumwatch/engine/internal/storage"
)

// HoldingPatterns fires when buyers keep what they bought: the share of buy
// volume owned by wallets with zero in-window sells must reach HoldRatio.
// Wallet breadth is weighted by persistent accumulators (two or more buys,
// no sells) rather than every one-off holder.
type HoldingPatterns struct{}

func (d *HoldingPatterns) Type() storage.SignalType {
	return storage.SignalHoldingPatterns
}

type holdStats struct {
	buyVolume  decimal.Decimal
	sellVolume decimal.Decimal
	buyCount   int
}

func (d *HoldingPatterns) Detect(in Input) *Candidate {
	stats := make(map[string]*holdStats)
	order := newOrderedSet()

	get := func(addr string) *holdStats {
		key := storage.NormalizeAddress(addr)
		s, ok := stats[key]
		if !ok {
			s = &holdStats{buyVolume: decimal.Zero, sellVolume: decimal.Zero}
			stats[key] = s
		}
		return s
	}

	totalBuys := decimal.Zero
	txCount := 0
	for i := range in.Transfers {
		tr := &in.Transfers[i]
		if !in.Wallets.IsExchange(tr.ToAddress) && !in.Wallets.IsLiquidityPool(tr.ToAddress) {
			s := get(tr.ToAddress)
			s.buyVolume = s.buyVolume.Add(tr.Amount)
			s.buyCount++
			totalBuys = totalBuys.Add(tr.Amount)
			txCount++
			order.add(tr.ToAddress)
		}
		if !in.Wallets.IsExchange(tr.FromAddress) && !in.Wallets.IsLiquidityPool(tr.FromAddress) {
			s := get(tr.FromAddress)
			s.sellVolume = s.sellVolume.Add(tr.Amount)
		}
	}

	t := in.Thresholds
	totalVol, _ := totalBuys.Float64()
	if totalVol < t.HoldingMinVolume {
		return nil
	}

	held := decimal.Zero
	holders := newOrderedSet()
	persistent := 0
	for _, addr := range order.items {
		s := stats[storage.NormalizeAddress(addr)]
		if s.buyCount == 0 || !s.sellVolume.IsZero() {
			continue
		}
		held = held.Add(s.buyVolume)
		holders.add(addr)
		if s.buyCount >= 2 {
			persistent++
		}
	}

	heldVol, _ := held.Float64()
	if heldVol/totalVol < t.HoldRatio {
		return nil
	}

	return &Candidate{
		Type:             d.Type(),
		Score:            score(t, totalVol, t.HoldingMinVolume, persistent),
		WalletsInvolved:  holders.items,
		TransactionCount: txCount,
		TotalVolume:      totalBuys,
		AverageBuySize:   averageBuySize(totalBuys, txCount),
	}
}
