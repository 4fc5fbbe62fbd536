package detector

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/accumwatch/engine/internal/storage"
)

// ConcentratedBuys fires when window buy volume is held by a small set of
// buyers: enough buy transfers, enough volume, and a Gini coefficient of
// per-buyer volume at or above ConcentrationGini. A buy is a transfer landing
// in a self-custody wallet (not exchange, not LP).
type ConcentratedBuys struct{}

func (d *ConcentratedBuys) Type() storage.SignalType {
	return storage.SignalConcentratedBuys
}

func (d *ConcentratedBuys) Detect(in Input) *Candidate {
	total := decimal.Zero
	txCount := 0
	buyers := newOrderedSet()
	perBuyer := make(map[string]float64)

	for i := range in.Transfers {
		tr := &in.Transfers[i]
		if in.Wallets.IsExchange(tr.ToAddress) || in.Wallets.IsLiquidityPool(tr.ToAddress) {
			continue
		}
		addr := storage.NormalizeAddress(tr.ToAddress)
		amt, _ := tr.Amount.Float64()
		perBuyer[addr] += amt
		total = total.Add(tr.Amount)
		txCount++
		buyers.add(tr.ToAddress)
	}

	t := in.Thresholds
	vol, _ := total.Float64()
	if txCount < t.MinBuyTransfers || vol < t.ConcentratedBuysMinVolume {
		return nil
	}
	if gini(perBuyer) < t.ConcentrationGini {
		return nil
	}

	return &Candidate{
		Type:             d.Type(),
		Score:            score(t, vol, t.ConcentratedBuysMinVolume, buyers.len()),
		WalletsInvolved:  buyers.items,
		TransactionCount: txCount,
		TotalVolume:      total,
		AverageBuySize:   averageBuySize(total, txCount),
	}
}

// gini computes the Gini coefficient of the volume distribution, 0 for a
// perfectly even split, approaching 1 when one buyer holds everything.
func gini(perBuyer map[string]float64) float64 {
	if len(perBuyer) == 0 {
		return 0
	}

	volumes := make([]float64, 0, len(perBuyer))
	sum := 0.0
	for _, v := range perBuyer {
		volumes = append(volumes, v)
		sum += v
	}
	if sum <= 0 {
		return 0
	}
	sort.Float64s(volumes)

	n := float64(len(volumes))
	weighted := 0.0
	for i, v := range volumes {
		weighted += float64(i+1) * v
	}
	return (2*weighted)/(n*sum) - (n+1)/n
}
