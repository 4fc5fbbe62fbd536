package detector

import (
	"github.com/shopspring/decimal"

	"github.com/accumwatch/engine/internal/config"
	"github.com/accumwatch/engine/internal/storage"
)

// scoreCeiling caps all detector scores. The 95-100 band is reserved so that
// downstream consumers can distinguish "very strong" from "impossible".
const scoreCeiling = 95.0

// Window is the half-open time range [Start, End) a detector examines.
type Window struct {
	Start int64
	End   int64
}

// Input is everything a detector needs for one (token, window) evaluation.
// Transfers are pre-filtered to the token and window, ordered by timestamp.
type Input struct {
	Token      *storage.Token
	Window     Window
	Transfers  []storage.Transfer
	Wallets    *WalletIndex
	Thresholds config.Thresholds
}

// Candidate is an unpersisted detection result. Score is on the 0-100 scale;
// WalletsInvolved preserves first-observation order with no duplicates.
type Candidate struct {
	Type             storage.SignalType
	Score            float64
	WalletsInvolved  []string
	TransactionCount int
	TotalVolume      decimal.Decimal
	AverageBuySize   decimal.Decimal
}

// Detector evaluates one signal type over a token window. Detect returns nil
// when the trigger condition is not met.
type Detector interface {
	Type() storage.SignalType
	Detect(in Input) *Candidate
}

// All returns the full detector set in a fixed order.
func All() []Detector {
	return []Detector{
		&WhaleInflow{},
		&ExchangeOutflow{},
		&ConcentratedBuys{},
		&HoldingPatterns{},
		&LPIncrease{},
	}
}

// WalletIndex classifies addresses for detection. Built from the labeled
// wallet set once per sweep; addresses not present are plain untracked wallets.
type WalletIndex struct {
	byAddress map[string]*storage.Wallet
}

// NewWalletIndex builds an index over labeled and tracked wallets.
func NewWalletIndex(wallets []storage.Wallet) *WalletIndex {
	idx := &WalletIndex{byAddress: make(map[string]*storage.Wallet, len(wallets))}
	for i := range wallets {
		idx.byAddress[storage.NormalizeAddress(wallets[i].Address)] = &wallets[i]
	}
	return idx
}

// IsTracked reports whether the address is under whale surveillance.
func (x *WalletIndex) IsTracked(addr string) bool {
	w, ok := x.byAddress[storage.NormalizeAddress(addr)]
	return ok && w.Tracked
}

// IsExchange reports whether the address carries an exchange label.
func (x *WalletIndex) IsExchange(addr string) bool {
	w, ok := x.byAddress[storage.NormalizeAddress(addr)]
	return ok && w.IsExchange()
}

// IsLiquidityPool reports whether the address carries an LP label.
func (x *WalletIndex) IsLiquidityPool(addr string) bool {
	w, ok := x.byAddress[storage.NormalizeAddress(addr)]
	return ok && w.IsLiquidityPool()
}

// score maps trigger volume and participating wallet count onto the 0-100
// scale. Volume saturates between 1x and 4x the trigger threshold, wallet
// breadth at 5 wallets. Monotone in volume at fixed wallet count.
func score(t config.Thresholds, volume, threshold float64, walletCount int) float64 {
	floor := t.SignalThreshold
	span := scoreCeiling - floor

	satVolume := 0.0
	if threshold > 0 && volume > threshold {
		satVolume = (volume/threshold - 1) / 3
		if satVolume > 1 {
			satVolume = 1
		}
	}

	satWallets := float64(walletCount) / 5
	if satWallets > 1 {
		satWallets = 1
	}

	return floor + span*(0.7*satVolume+0.3*satWallets)
}

// orderedSet accumulates strings preserving first-insertion order.
type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(item string) {
	if s.seen[item] {
		return
	}
	s.seen[item] = true
	s.items = append(s.items, item)
}

func (s *orderedSet) len() int {
	return len(s.items)
}

// averageBuySize divides total volume by count, zero-safe.
func averageBuySize(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count)))
}
