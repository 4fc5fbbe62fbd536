package feed

import (
	"github.com/shopspring/decimal"
)

// TransferEvent is a raw transfer record from the feed. Amounts arrive as
// decimal strings; decode keeps them exact.
type TransferEvent struct {
	TxHash          string          `json:"txHash"`
	Chain           string          `json:"chain"`
	ContractAddress string          `json:"contractAddress"`
	FromAddress     string          `json:"from"`
	ToAddress       string          `json:"to"`
	Amount          decimal.Decimal `json:"amount"`
	ValueUSD        decimal.Decimal `json:"valueUsd"` // zero when the feed has no quote
	BlockNumber     uint64          `json:"blockNumber"`
	Timestamp       int64           `json:"timestamp"`
}

// TransfersResponse wraps a page of transfer events
type TransfersResponse struct {
	Transfers []TransferEvent
	Count     int
}

// TokenStats is the market snapshot for a single token contract
type TokenStats struct {
	ContractAddress string  `json:"contractAddress"`
	Chain           string  `json:"chain"`
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Volume24h       float64 `json:"volume24h"`
	PrevVolume24h   float64 `json:"prevVolume24h"`
	MarketCap       float64 `json:"marketCap"`
	PriceChange24h  float64 `json:"priceChange24h"`
	CreatedTS       int64   `json:"createdAt"`
}
