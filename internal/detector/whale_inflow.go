package detector

import (
	"github.com/shopspring/decimal"

	"github.com/accumwatch/engine/internal/storage"
)

// WhaleInflow fires when tracked (whale) wallets collectively receive more
// than WhaleBuyThreshold of the token inside the window. Self-transfers
// between tracked wallets do not count as fresh inflow.
type WhaleInflow struct{}

func (d *WhaleInflow) Type() storage.SignalType {
	return storage.SignalWhaleInflow
}

func (d *WhaleInflow) Detect(in Input) *Candidate {
	total := decimal.Zero
	txCount := 0
	wallets := newOrderedSet()

	for i := range in.Transfers {
		tr := &in.Transfers[i]
		if !in.Wallets.IsTracked(tr.ToAddress) {
			continue
		}
		if in.Wallets.IsTracked(tr.FromAddress) {
			// Reshuffling between whales, not accumulation.
			continue
		}
		total = total.Add(tr.Amount)
		txCount++
		wallets.add(tr.ToAddress)
	}

	threshold := in.Thresholds.WhaleBuyThreshold
	vol, _ := total.Float64()
	if vol <= threshold || txCount == 0 {
		return nil
	}

	return &Candidate{
		Type:             d.Type(),
		Score:            score(in.Thresholds, vol, threshold, wallets.len()),
		WalletsInvolved:  wallets.items,
		TransactionCount: txCount,
		TotalVolume:      total,
		AverageBuySize:   averageBuySize(total, txCount),
	}
}
