package detector

import (
	"github.com/shopspring/decimal"

	"github.com/accumwatch/engine/internal/storage"
)

// ExchangeOutflow fires when more than ExchangeWithdrawalThreshold of the
// token moves from exchange-labeled addresses to self-custody in the window.
// Tokens leaving exchanges are no longer sellable at a click, which reads as
// accumulation intent.
type ExchangeOutflow struct{}

func (d *ExchangeOutflow) Type() storage.SignalType {
	return storage.SignalExchangeOutflow
}

func (d *ExchangeOutflow) Detect(in Input) *Candidate {
	total := decimal.Zero
	txCount := 0
	recipients := newOrderedSet()

	for i := range in.Transfers {
		tr := &in.Transfers[i]
		if !in.Wallets.IsExchange(tr.FromAddress) {
			continue
		}
		if in.Wallets.IsExchange(tr.ToAddress) {
			// Inter-exchange movement, not a withdrawal.
			continue
		}
		total = total.Add(tr.Amount)
		txCount++
		recipients.add(tr.ToAddress)
	}

	threshold := in.Thresholds.ExchangeWithdrawalThreshold
	vol, _ := total.Float64()
	if vol <= threshold || txCount == 0 {
		return nil
	}

	return &Candidate{
		Type:             d.Type(),
		Score:            score(in.Thresholds, vol, threshold, recipients.len()),
		WalletsInvolved:  recipients.items,
		TransactionCount: txCount,
		TotalVolume:      total,
		AverageBuySize:   averageBuySize(total, txCount),
	}
}
