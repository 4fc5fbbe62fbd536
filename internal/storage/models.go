package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SignalType identifies which detector produced an accumulation signal.
// The set is closed; unknown values are rejected at the storage-read boundary.
type SignalType string

const (
	SignalWhaleInflow      SignalType = "WHALE_INFLOW"
	SignalExchangeOutflow  SignalType = "EXCHANGE_OUTFLOW"
	SignalConcentratedBuys SignalType = "CONCENTRATED_BUYS"
	SignalHoldingPatterns  SignalType = "HOLDING_PATTERNS"
	SignalLPIncrease       SignalType = "LP_INCREASE"
)

// ParseSignalType validates a raw signal type string read from storage.
func ParseSignalType(s string) (SignalType, error) {
	switch SignalType(s) {
	case SignalWhaleInflow, SignalExchangeOutflow, SignalConcentratedBuys,
		SignalHoldingPatterns, SignalLPIncrease:
		return SignalType(s), nil
	}
	return "", fmt.Errorf("unknown signal type %q", s)
}

// Plan is a subscription tier.
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// AlertStatus is the delivery lifecycle of an alert. DELIVERED and FAILED are terminal.
type AlertStatus string

const (
	AlertPending   AlertStatus = "PENDING"
	AlertDelivered AlertStatus = "DELIVERED"
	AlertFailed    AlertStatus = "FAILED"
)

// Wallet label prefixes. Labels classify known addresses; the detectors key off them.
const (
	LabelExchangePrefix = "exchange:"
	LabelLPPrefix       = "lp:"
)

// Token is a tracked token contract on some chain. Immutable once created
// except the active flag and metadata enrichment.
type Token struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Chain           string `gorm:"size:32;not null;uniqueIndex:uniq_chain_contract"`
	ContractAddress string `gorm:"size:128;not null;uniqueIndex:uniq_chain_contract"`
	Symbol          string `gorm:"size:32;not null;index"`
	Name            string `gorm:"size:255"`
	Decimals        int    `gorm:"not null;default:18"`
	Active          bool   `gorm:"not null;default:true;index"`
	Metadata        string `gorm:"type:text"`
	CreatedTS       int64  `gorm:"not null;index"`
}

func (Token) TableName() string {
	return "tokens"
}

// AgeDays returns the token age in whole days at the given time.
func (t *Token) AgeDays(now time.Time) int {
	if t.CreatedTS <= 0 {
		return 0
	}
	return int(now.Unix()-t.CreatedTS) / 86400
}

// Wallet is an observed address. Tracked wallets are under whale/smart-money
// surveillance; untracked ones are created lazily on first observed transfer.
type Wallet struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Address   string `gorm:"size:128;not null;uniqueIndex"`
	Label     string `gorm:"size:128;index"`
	Tracked   bool   `gorm:"not null;default:false;index"`
	CreatedTS int64  `gorm:"not null"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// IsExchange reports whether the wallet carries an exchange label.
func (w *Wallet) IsExchange() bool {
	return strings.HasPrefix(w.Label, LabelExchangePrefix)
}

// IsLiquidityPool reports whether the wallet carries a liquidity-pool label.
func (w *Wallet) IsLiquidityPool() bool {
	return strings.HasPrefix(w.Label, LabelLPPrefix)
}

// NormalizeAddress lowercases an address for case-insensitive uniqueness.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Transfer is an immutable, append-only token transfer record. Unique by
// (tx_hash, token_id) so re-ingestion is idempotent. This is the sole source
// of truth the detectors read from.
type Transfer struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement"`
	TxHash       string          `gorm:"size:128;not null;uniqueIndex:uniq_tx_token"`
	TokenID      uint64          `gorm:"not null;uniqueIndex:uniq_tx_token;index:idx_token_ts"`
	FromAddress  string          `gorm:"size:128;not null;index"`
	ToAddress    string          `gorm:"size:128;not null;index"`
	Amount       decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	ValueUSD     decimal.Decimal `gorm:"type:decimal(24,8);not null;default:0"`
	BlockNumber  uint64          `gorm:"not null"`
	TimestampSec int64           `gorm:"not null;index:idx_token_ts"`
	Metadata     string          `gorm:"type:text"`
	CreatedTS    int64           `gorm:"not null"`
}

func (Transfer) TableName() string {
	return "transfers"
}

// WalletPosition is a current-holdings snapshot per (wallet, token), not a ledger.
type WalletPosition struct {
	WalletID      uint64          `gorm:"primaryKey"`
	TokenID       uint64          `gorm:"primaryKey"`
	Balance       decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	LastUpdatedTS int64           `gorm:"not null;index"`
}

func (WalletPosition) TableName() string {
	return "wallet_positions"
}

// AccumulationSignal is a persisted, scored, typed claim that accumulation
// behavior occurred for a token in a window. Immutable after creation.
// The (token_id, signal_type, window_start_ts) key backstops dedup races.
type AccumulationSignal struct {
	ID               string          `gorm:"primaryKey;size:36"`
	TokenID          uint64          `gorm:"not null;uniqueIndex:uniq_token_type_window;index"`
	SignalType       string          `gorm:"size:32;not null;uniqueIndex:uniq_token_type_window;index"`
	Score            float64         `gorm:"type:decimal(5,2);not null;index"`
	WindowStartTS    int64           `gorm:"not null;uniqueIndex:uniq_token_type_window"`
	WindowEndTS      int64           `gorm:"not null"`
	WalletsInvolved  string          `gorm:"type:text;not null"` // JSON array, insertion order, deduped
	TransactionCount int             `gorm:"not null"`
	TotalVolume      decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	AverageBuySize   decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	CreatedTS        int64           `gorm:"not null;index"`
}

func (AccumulationSignal) TableName() string {
	return "accumulation_signals"
}

// Type returns the validated signal type, rejecting unknown stored values.
func (s *AccumulationSignal) Type() (SignalType, error) {
	return ParseSignalType(s.SignalType)
}

// Wallets decodes the involved-wallet set, preserving order.
func (s *AccumulationSignal) Wallets() []string {
	var out []string
	if err := json.Unmarshal([]byte(s.WalletsInvolved), &out); err != nil {
		return nil
	}
	return out
}

// SetWallets encodes the involved-wallet set.
func (s *AccumulationSignal) SetWallets(addrs []string) {
	b, _ := json.Marshal(addrs)
	s.WalletsInvolved = string(b)
}

// Alert records that a signal crossed a subscriber's threshold. Status moves
// PENDING -> DELIVERED|FAILED and never back.
type Alert struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"size:64;not null;index"`
	SignalID    string `gorm:"size:36;not null;index"`
	Channels    string `gorm:"size:64;not null"` // comma-separated: telegram,email
	Status      string `gorm:"size:16;not null;index"`
	CreatedTS   int64  `gorm:"not null;index"`
	DeliveredTS int64  `gorm:"default:0"`
}

func (Alert) TableName() string {
	return "alerts"
}

// Subscription is a user's alert preference.
type Subscription struct {
	UserID         string  `gorm:"primaryKey;size:64"`
	Plan           string  `gorm:"size:16;not null;index"`
	MinScore       float64 `gorm:"type:decimal(5,2);not null;default:75"`
	Telegram       bool    `gorm:"not null;default:false"`
	TelegramChatID string  `gorm:"size:64"`
	Email          string  `gorm:"size:255"`
	Active         bool    `gorm:"not null;default:true;index"`
	CreatedTS      int64   `gorm:"not null"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// TokenMetric is the derived per-token row the screener reads. Refreshed by
// the aggregator after each sweep and from the feed's stats endpoint.
type TokenMetric struct {
	TokenID            uint64  `gorm:"primaryKey"`
	Volume24h          float64 `gorm:"type:decimal(20,2);not null;default:0;index"`
	PrevVolume24h      float64 `gorm:"type:decimal(20,2);not null;default:0"`
	MarketCap          float64 `gorm:"type:decimal(20,2);not null;default:0;index"`
	PriceChange24h     float64 `gorm:"type:decimal(10,4);not null;default:0"`
	WhaleInflowPercent float64 `gorm:"type:decimal(5,2);not null;default:0"`
	SmartWalletsCount  int     `gorm:"not null;default:0"`
	AccumulationScore  float64 `gorm:"type:decimal(5,2);not null;default:0;index"`
	LatestSignalType   string  `gorm:"size:32"`
	LatestSignalTS     int64   `gorm:"default:0"`
	Breakout           bool    `gorm:"not null;default:false"`
	UpdatedTS          int64   `gorm:"not null;index"`
}

func (TokenMetric) TableName() string {
	return "token_metrics"
}

// AppState stores application state for checkpointing
type AppState struct {
	StateKey   string `gorm:"primaryKey;size:64"`
	StateValue string `gorm:"type:text;not null"`
	UpdatedTS  int64  `gorm:"not null;index"`
}

func (AppState) TableName() string {
	return "app_state"
}

// BeforeCreate hooks for timestamps
func (a *AppState) BeforeCreate(tx *gorm.DB) error {
	if a.UpdatedTS == 0 {
		a.UpdatedTS = time.Now().Unix()
	}
	return nil
}

func (t *Token) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedTS == 0 {
		t.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	w.Address = NormalizeAddress(w.Address)
	if w.CreatedTS == 0 {
		w.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (t *Transfer) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedTS == 0 {
		t.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (s *AccumulationSignal) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedTS == 0 {
		s.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedTS == 0 {
		a.CreatedTS = time.Now().Unix()
	}
	if a.Status == "" {
		a.Status = string(AlertPending)
	}
	return nil
}

func (m *TokenMetric) BeforeCreate(tx *gorm.DB) error {
	if m.UpdatedTS == 0 {
		m.UpdatedTS = time.Now().Unix()
	}
	return nil
}
