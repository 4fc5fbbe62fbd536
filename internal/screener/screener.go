package screener

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accumwatch/engine/internal/metrics"
	"github.com/accumwatch/engine/internal/storage"
)

// Store is the read surface the screener ranks over.
type Store interface {
	ListActiveTokens(ctx context.Context) ([]storage.Token, error)
	ListTokenMetrics(ctx context.Context) ([]storage.TokenMetric, error)
}

// Filter is a conjunction of optional bounds; nil fields do not constrain.
type Filter struct {
	MinAccumulationScore *float64
	MinSmartWallets      *int
	MinMarketCap         *float64
	MaxMarketCap         *float64
	MinVolume24h         *float64
	MinWhaleInflowPct    *float64
	MaxAgeDays           *int
	Chain                string
	SignalType           string
	BreakoutOnly         bool
}

// Query is one screener invocation. A preset resolves into Filter bounds
// before ad-hoc fields are applied; ad-hoc fields tighten, never loosen.
type Query struct {
	Preset string
	Filter Filter
	SortBy string // score, volume, market_cap, whale_inflow, smart_wallets
	Limit  int
}

// Row is one ranked screener result.
type Row struct {
	TokenID            uint64  `json:"tokenId"`
	Chain              string  `json:"chain"`
	Symbol             string  `json:"symbol"`
	Name               string  `json:"name"`
	ContractAddress    string  `json:"contractAddress"`
	AccumulationScore  float64 `json:"accumulationScore"`
	WhaleInflowPercent float64 `json:"whaleInflowPercent"`
	SmartWalletsCount  int     `json:"smartWalletsCount"`
	Volume24h          float64 `json:"volume24h"`
	MarketCap          float64 `json:"marketCap"`
	PriceChange24h     float64 `json:"priceChange24h"`
	AgeDays            int     `json:"ageDays"`
	LatestSignalType   string  `json:"latestSignalType,omitempty"`
	Breakout           bool    `json:"breakout"`
}

// Engine is the stateless ranking component. Every call reads current rows;
// nothing is cached between queries.
type Engine struct {
	store  Store
	logger *logrus.Logger
}

// New creates a screener engine
func New(store Store, logger *logrus.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Screen filters and ranks active tokens by their derived metrics.
func (e *Engine) Screen(ctx context.Context, q Query) ([]Row, error) {
	filter, err := resolvePreset(q.Preset, q.Filter)
	if err != nil {
		metrics.ScreenerQueries.WithLabelValues(presetLabel(q.Preset), "error").Inc()
		return nil, err
	}

	tokens, err := e.store.ListActiveTokens(ctx)
	if err != nil {
		metrics.ScreenerQueries.WithLabelValues(presetLabel(q.Preset), "error").Inc()
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	tokenByID := make(map[uint64]*storage.Token, len(tokens))
	for i := range tokens {
		tokenByID[tokens[i].ID] = &tokens[i]
	}

	rows, err := e.store.ListTokenMetrics(ctx)
	if err != nil {
		metrics.ScreenerQueries.WithLabelValues(presetLabel(q.Preset), "error").Inc()
		return nil, fmt.Errorf("list token metrics: %w", err)
	}

	now := time.Now()
	out := make([]Row, 0, len(rows))
	for i := range rows {
		m := &rows[i]
		token, ok := tokenByID[m.TokenID]
		if !ok {
			// Metric for an inactive or deleted token.
			continue
		}
		if !matches(filter, token, m, now) {
			continue
		}
		out = append(out, Row{
			TokenID:            m.TokenID,
			Chain:              token.Chain,
			Symbol:             token.Symbol,
			Name:               token.Name,
			ContractAddress:    token.ContractAddress,
			AccumulationScore:  m.AccumulationScore,
			WhaleInflowPercent: m.WhaleInflowPercent,
			SmartWalletsCount:  m.SmartWalletsCount,
			Volume24h:          m.Volume24h,
			MarketCap:          m.MarketCap,
			PriceChange24h:     m.PriceChange24h,
			AgeDays:            token.AgeDays(now),
			LatestSignalType:   m.LatestSignalType,
			Breakout:           m.Breakout,
		})
	}

	sortRows(out, q.SortBy)

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	metrics.ScreenerQueries.WithLabelValues(presetLabel(q.Preset), "success").Inc()
	return out, nil
}

// matches applies conjunction semantics: every set bound must hold.
func matches(f Filter, token *storage.Token, m *storage.TokenMetric, now time.Time) bool {
	if f.MinAccumulationScore != nil && m.AccumulationScore < *f.MinAccumulationScore {
		return false
	}
	if f.MinSmartWallets != nil && m.SmartWalletsCount < *f.MinSmartWallets {
		return false
	}
	if f.MinMarketCap != nil && m.MarketCap < *f.MinMarketCap {
		return false
	}
	if f.MaxMarketCap != nil && m.MarketCap >= *f.MaxMarketCap {
		return false
	}
	if f.MinVolume24h != nil && m.Volume24h < *f.MinVolume24h {
		return false
	}
	if f.MinWhaleInflowPct != nil && m.WhaleInflowPercent < *f.MinWhaleInflowPct {
		return false
	}
	if f.MaxAgeDays != nil && token.AgeDays(now) > *f.MaxAgeDays {
		return false
	}
	if f.Chain != "" && token.Chain != f.Chain {
		return false
	}
	if f.SignalType != "" && m.LatestSignalType != f.SignalType {
		return false
	}
	if f.BreakoutOnly && !m.Breakout {
		return false
	}
	return true
}

// sortRows orders results by the requested dimension, descending, with
// tokenID ascending as the deterministic tie-break.
func sortRows(rows []Row, sortBy string) {
	key := func(r *Row) float64 {
		switch sortBy {
		case "volume":
			return r.Volume24h
		case "market_cap":
			return r.MarketCap
		case "whale_inflow":
			return r.WhaleInflowPercent
		case "smart_wallets":
			return float64(r.SmartWalletsCount)
		default:
			return r.AccumulationScore
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := key(&rows[i]), key(&rows[j])
		if ki != kj {
			return ki > kj
		}
		return rows[i].TokenID < rows[j].TokenID
	})
}

func presetLabel(preset string) string {
	if preset == "" {
		return "custom"
	}
	return preset
}
