package alerts

import (
	"context"
	"time"
)

// AlertPayload contains all information for a signal alert
type AlertPayload struct {
	SignalID         string
	SignalType       string
	Score            float64
	Chain            string
	TokenSymbol      string
	TokenName        string
	ContractAddress  string
	ContractShort    string // Shortened for display
	WindowStart      time.Time
	WindowEnd        time.Time
	WalletCount      int
	SampleWallets    []string // first few involved addresses
	TransactionCount int
	TotalVolume      string // decimal-formatted
	AverageBuySize   string
	Timestamp        time.Time
	Environment      string
}

// Sender defines the interface for alert senders
type Sender interface {
	Send(ctx context.Context, payload *AlertPayload) error
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortAddress abbreviates an address for display
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
