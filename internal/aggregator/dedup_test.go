package aggregator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/accumwatch/engine/internal/detector"
	"github.com/accumwatch/engine/internal/storage"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 1},
		{"one empty", []string{"0xa"}, nil, 0},
		{"identical", []string{"0xa", "0xb"}, []string{"0xa", "0xb"}, 1},
		{"case insensitive", []string{"0xAB"}, []string{"0xab"}, 1},
		{"disjoint", []string{"0xa"}, []string{"0xb"}, 0},
		{"half overlap", []string{"0xa", "0xb"}, []string{"0xb", "0xc"}, 1.0 / 3.0},
		{"duplicates collapse", []string{"0xa", "0xa"}, []string{"0xa"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, jaccard(tt.a, tt.b), 0.0001)
		})
	}
}

func TestVolumeWithin(t *testing.T) {
	d100 := decimal.NewFromInt(100)

	assert.True(t, volumeWithin(d100, decimal.NewFromInt(105), 0.1))
	assert.True(t, volumeWithin(d100, decimal.NewFromInt(110), 0.1))
	assert.False(t, volumeWithin(d100, decimal.NewFromInt(111), 0.1))
	assert.True(t, volumeWithin(decimal.Zero, decimal.Zero, 0.1))
	assert.False(t, volumeWithin(decimal.Zero, d100, 0.1))
}

func TestIsDuplicate(t *testing.T) {
	existing := storage.AccumulationSignal{
		TokenID:       1,
		SignalType:    string(storage.SignalWhaleInflow),
		WindowStartTS: 1000,
		WindowEndTS:   2000,
		TotalVolume:   decimal.NewFromInt(1000),
	}
	existing.SetWallets([]string{"0xa", "0xb"})

	candidate := &detector.Candidate{
		Type:            storage.SignalWhaleInflow,
		WalletsInvolved: []string{"0xa", "0xb"},
		TotalVolume:     decimal.NewFromInt(1050),
	}

	overlapping := detector.Window{Start: 1500, End: 2500}
	disjoint := detector.Window{Start: 3000, End: 4000}

	assert.True(t, isDuplicate(candidate, overlapping, []storage.AccumulationSignal{existing}, 0.8, 0.1))
	assert.False(t, isDuplicate(candidate, disjoint, []storage.AccumulationSignal{existing}, 0.8, 0.1),
		"non-overlapping windows are distinct events")

	differentWallets := &detector.Candidate{
		Type:            storage.SignalWhaleInflow,
		WalletsInvolved: []string{"0xc", "0xd"},
		TotalVolume:     decimal.NewFromInt(1050),
	}
	assert.False(t, isDuplicate(differentWallets, overlapping, []storage.AccumulationSignal{existing}, 0.8, 0.1))

	differentVolume := &detector.Candidate{
		Type:            storage.SignalWhaleInflow,
		WalletsInvolved: []string{"0xa", "0xb"},
		TotalVolume:     decimal.NewFromInt(5000),
	}
	assert.False(t, isDuplicate(differentVolume, overlapping, []storage.AccumulationSignal{existing}, 0.8, 0.1))

	assert.False(t, isDuplicate(candidate, overlapping, nil, 0.8, 0.1))
}
