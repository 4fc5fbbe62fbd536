package screener

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accumwatch/engine/internal/storage"
)

type fakeStore struct {
	tokens  []storage.Token
	metrics []storage.TokenMetric
}

func (f *fakeStore) ListActiveTokens(ctx context.Context) ([]storage.Token, error) {
	return f.tokens, nil
}

func (f *fakeStore) ListTokenMetrics(ctx context.Context) ([]storage.TokenMetric, error) {
	return f.metrics, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func seededEngine() *Engine {
	now := time.Now().Unix()
	day := int64(86400)
	store := &fakeStore{
		tokens: []storage.Token{
			{ID: 1, Chain: "ethereum", Symbol: "FRESH", Active: true, CreatedTS: now - 5*day},
			{ID: 2, Chain: "ethereum", Symbol: "SMALL", Active: true, CreatedTS: now - 400*day},
			{ID: 3, Chain: "bsc", Symbol: "WHALE", Active: true, CreatedTS: now - 100*day},
			{ID: 4, Chain: "ethereum", Symbol: "QUIET", Active: true, CreatedTS: now - 50*day},
		},
		metrics: []storage.TokenMetric{
			{TokenID: 1, AccumulationScore: 82, SmartWalletsCount: 3, MarketCap: 5_000_000, Volume24h: 250_000, WhaleInflowPercent: 10, LatestSignalType: string(storage.SignalWhaleInflow)},
			{TokenID: 2, AccumulationScore: 71, SmartWalletsCount: 8, MarketCap: 600_000, Volume24h: 50_000, WhaleInflowPercent: 5},
			{TokenID: 3, AccumulationScore: 77, SmartWalletsCount: 2, MarketCap: 40_000_000, Volume24h: 900_000, WhaleInflowPercent: 55, Breakout: true},
			{TokenID: 4, AccumulationScore: 20, SmartWalletsCount: 0, MarketCap: 100_000, Volume24h: 1_000, WhaleInflowPercent: 0},
		},
	}
	return New(store, quietLogger())
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestScreenDefaultSortIsScoreDescending(t *testing.T) {
	rows, err := seededEngine().Screen(context.Background(), Query{})

	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, uint64(1), rows[0].TokenID)
	assert.Equal(t, uint64(3), rows[1].TokenID)
	assert.Equal(t, uint64(2), rows[2].TokenID)
	assert.Equal(t, uint64(4), rows[3].TokenID)
}

func TestScreenTieBreakIsDeterministic(t *testing.T) {
	store := &fakeStore{
		tokens: []storage.Token{
			{ID: 9, Chain: "ethereum", Symbol: "A", Active: true},
			{ID: 3, Chain: "ethereum", Symbol: "B", Active: true},
			{ID: 6, Chain: "ethereum", Symbol: "C", Active: true},
		},
		metrics: []storage.TokenMetric{
			{TokenID: 9, AccumulationScore: 50},
			{TokenID: 3, AccumulationScore: 50},
			{TokenID: 6, AccumulationScore: 50},
		},
	}
	engine := New(store, quietLogger())

	for i := 0; i < 5; i++ {
		rows, err := engine.Screen(context.Background(), Query{})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, uint64(3), rows[0].TokenID)
		assert.Equal(t, uint64(6), rows[1].TokenID)
		assert.Equal(t, uint64(9), rows[2].TokenID)
	}
}

func TestScreenFiltersAreConjunctive(t *testing.T) {
	rows, err := seededEngine().Screen(context.Background(), Query{
		Filter: Filter{
			MinAccumulationScore: fptr(70),
			Chain:                "ethereum",
		},
	})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.GreaterOrEqual(t, r.AccumulationScore, 70.0)
		assert.Equal(t, "ethereum", r.Chain)
	}
}

func TestScreenExtraFilterNarrowsResults(t *testing.T) {
	engine := seededEngine()
	ctx := context.Background()

	broad, err := engine.Screen(ctx, Query{Filter: Filter{MinAccumulationScore: fptr(70)}})
	require.NoError(t, err)

	narrow, err := engine.Screen(ctx, Query{Filter: Filter{
		MinAccumulationScore: fptr(70),
		MinWhaleInflowPct:    fptr(40),
	}})
	require.NoError(t, err)

	assert.Less(t, len(narrow), len(broad))
	broadIDs := make(map[uint64]bool)
	for _, r := range broad {
		broadIDs[r.TokenID] = true
	}
	for _, r := range narrow {
		assert.True(t, broadIDs[r.TokenID], "narrowed results must be a subset")
	}
}

func TestScreenPresets(t *testing.T) {
	engine := seededEngine()
	ctx := context.Background()

	t.Run("low-mcap-high-smart", func(t *testing.T) {
		rows, err := engine.Screen(ctx, Query{Preset: PresetLowMcapHighSmart})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, uint64(2), rows[0].TokenID)
	})

	t.Run("fresh-accumulation", func(t *testing.T) {
		rows, err := engine.Screen(ctx, Query{Preset: PresetFreshAccumulation})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, uint64(1), rows[0].TokenID)
	})

	t.Run("whale-favorites", func(t *testing.T) {
		rows, err := engine.Screen(ctx, Query{Preset: PresetWhaleFavorites})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, uint64(3), rows[0].TokenID)
	})

	t.Run("unknown preset rejected", func(t *testing.T) {
		_, err := engine.Screen(ctx, Query{Preset: "moonshots"})
		assert.Error(t, err)
	})
}

func TestScreenPresetTightensButNeverLoosens(t *testing.T) {
	engine := seededEngine()
	ctx := context.Background()

	// An explicit bound stricter than the preset's must survive resolution.
	rows, err := engine.Screen(ctx, Query{
		Preset: PresetWhaleFavorites,
		Filter: Filter{MinWhaleInflowPct: fptr(60)},
	})
	require.NoError(t, err)
	assert.Empty(t, rows, "explicit 60%% floor is stricter than the preset's 40%%")
}

func TestScreenBreakoutAndSignalTypeFilters(t *testing.T) {
	engine := seededEngine()
	ctx := context.Background()

	rows, err := engine.Screen(ctx, Query{Filter: Filter{BreakoutOnly: true}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(3), rows[0].TokenID)

	rows, err = engine.Screen(ctx, Query{Filter: Filter{SignalType: string(storage.SignalWhaleInflow)}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), rows[0].TokenID)
}

func TestScreenLimitAndAlternateSort(t *testing.T) {
	rows, err := seededEngine().Screen(context.Background(), Query{SortBy: "volume", Limit: 2})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(3), rows[0].TokenID)
	assert.Equal(t, uint64(1), rows[1].TokenID)
}

func TestScreenSkipsMetricsWithoutActiveToken(t *testing.T) {
	store := &fakeStore{
		tokens: []storage.Token{{ID: 1, Chain: "ethereum", Symbol: "TKN", Active: true}},
		metrics: []storage.TokenMetric{
			{TokenID: 1, AccumulationScore: 60},
			{TokenID: 99, AccumulationScore: 90},
		},
	}

	rows, err := New(store, quietLogger()).Screen(context.Background(), Query{})

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), rows[0].TokenID)
}
