package aggregator

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/accumwatch/engine/internal/config"
	"github.com/accumwatch/engine/internal/detector"
	"github.com/accumwatch/engine/internal/feed"
	"github.com/accumwatch/engine/internal/metrics"
	"github.com/accumwatch/engine/internal/performance"
	"github.com/accumwatch/engine/internal/storage"
)

// Store is the storage surface the aggregator reads and writes.
type Store interface {
	ListActiveTokens(ctx context.Context) ([]storage.Token, error)
	ListLabeledWallets(ctx context.Context) ([]storage.Wallet, error)
	GetTransfers(ctx context.Context, tokenID uint64, fromTS, toTS int64) ([]storage.Transfer, error)
	GetTransfersForAddress(ctx context.Context, address string, limit int) ([]storage.Transfer, error)
	GetSignalsSince(ctx context.Context, tokenID uint64, signalType storage.SignalType, sinceTS int64) ([]storage.AccumulationSignal, error)
	GetLatestSignal(ctx context.Context, tokenID uint64) (*storage.AccumulationSignal, error)
	InsertSignal(ctx context.Context, signal *storage.AccumulationSignal) (string, error)
	GetTokenMetric(ctx context.Context, tokenID uint64) (*storage.TokenMetric, error)
	UpsertTokenMetric(ctx context.Context, metric *storage.TokenMetric) error
}

// StatsSource supplies market snapshots for the token metric refresh.
// Nil-able: without one, breakout detection runs on the stored metric only.
type StatsSource interface {
	GetTokenStats(ctx context.Context, chain, contractAddress string) (*feed.TokenStats, error)
}

// AlertSink receives signals that cleared the alert floor.
type AlertSink interface {
	Dispatch(ctx context.Context, token *storage.Token, signal *storage.AccumulationSignal) error
}

// Aggregator runs the detector set over a sliding window per token, persists
// qualifying signals, and keeps the derived token metrics current. Each sweep
// re-evaluates the full window; dedup is what prevents signal storms.
type Aggregator struct {
	store     Store
	stats     StatsSource
	alerts    AlertSink
	detectors []detector.Detector
	cfg       *config.Config
	logger    *logrus.Logger
}

// New creates an aggregator with the full detector set.
func New(store Store, stats StatsSource, alerts AlertSink, cfg *config.Config, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		store:     store,
		stats:     stats,
		alerts:    alerts,
		detectors: detector.All(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Sweep evaluates every active token once. Per-token failures are logged and
// deferred to the next cycle; only whole-sweep setup errors are returned.
func (a *Aggregator) Sweep(ctx context.Context) error {
	start := time.Now()

	wallets, err := a.retryWallets(ctx)
	if err != nil {
		metrics.RecordSweep("error", start)
		return fmt.Errorf("list labeled wallets: %w", err)
	}
	index := detector.NewWalletIndex(wallets)

	tokens, err := a.retryTokens(ctx)
	if err != nil {
		metrics.RecordSweep("error", start)
		return fmt.Errorf("list active tokens: %w", err)
	}

	windowStart, windowEnd := a.cfg.SweepWindow(start)
	window := detector.Window{Start: windowStart, End: windowEnd}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.SweepWorkers)

	for i := range tokens {
		token := tokens[i]
		g.Go(func() error {
			if err := a.sweepToken(gctx, &token, window, index); err != nil {
				a.logger.WithError(err).WithFields(logrus.Fields{
					"token_id": token.ID,
					"symbol":   token.Symbol,
				}).Warn("Token sweep failed, deferring to next cycle")
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	status := "success"
	if failed.Load() > 0 {
		status = "partial"
	}
	metrics.RecordSweep(status, start)

	a.logger.WithFields(logrus.Fields{
		"tokens":   len(tokens),
		"failed":   failed.Load(),
		"duration": time.Since(start).String(),
	}).Info("Sweep complete")

	return nil
}

func (a *Aggregator) sweepToken(ctx context.Context, token *storage.Token, window detector.Window, index *detector.WalletIndex) error {
	transfers, err := backoff.Retry(ctx, func() ([]storage.Transfer, error) {
		out, err := a.store.GetTransfers(ctx, token.ID, window.Start, window.End)
		if err != nil && !storage.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		return fmt.Errorf("fetch window transfers: %w", err)
	}

	transfers = filterWellFormed(transfers)
	if len(transfers) == 0 {
		return a.refreshMetric(ctx, token, nil, index)
	}

	in := detector.Input{
		Token:      token,
		Window:     window,
		Transfers:  transfers,
		Wallets:    index,
		Thresholds: a.cfg.Thresholds,
	}

	// Detectors are pure; run them concurrently and join before persist.
	candidates := make([]*detector.Candidate, len(a.detectors))
	var dg errgroup.Group
	for i, d := range a.detectors {
		dg.Go(func() error {
			candidates[i] = d.Detect(in)
			return nil
		})
	}
	_ = dg.Wait() // detectors never return errors

	for _, c := range candidates {
		if c == nil {
			continue
		}
		if err := a.persistCandidate(ctx, token, c, window); err != nil {
			return err
		}
	}

	return a.refreshMetric(ctx, token, transfers, index)
}

// persistCandidate applies the score floors and dedup, then writes the
// signal. Suppressed candidates are not an error.
func (a *Aggregator) persistCandidate(ctx context.Context, token *storage.Token, c *detector.Candidate, window detector.Window) error {
	if c.Score < a.scoreFloor(c.Type) {
		metrics.RecordSuppressed("below_threshold")
		return nil
	}

	// Look back far enough to see any signal whose window can still overlap.
	sinceTS := window.Start - int64(a.cfg.SweepLookbackHrs)*3600
	existing, err := a.store.GetSignalsSince(ctx, token.ID, c.Type, sinceTS)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if isDuplicate(c, window, existing, a.cfg.DedupWalletOverlap, a.cfg.DedupVolumeTolerance) {
		metrics.RecordSuppressed("duplicate")
		return nil
	}

	sig := &storage.AccumulationSignal{
		ID:               uuid.NewString(),
		TokenID:          token.ID,
		SignalType:       string(c.Type),
		Score:            math.Round(c.Score*100) / 100,
		WindowStartTS:    window.Start,
		WindowEndTS:      window.End,
		TransactionCount: c.TransactionCount,
		TotalVolume:      c.TotalVolume,
		AverageBuySize:   c.AverageBuySize,
	}
	sig.SetWallets(c.WalletsInvolved)

	if _, err := a.store.InsertSignal(ctx, sig); err != nil {
		if storage.IsConflict(err) {
			// Another sweep won the natural-key race.
			metrics.RecordSuppressed("conflict")
			return nil
		}
		return fmt.Errorf("persist signal: %w", err)
	}

	metrics.RecordSignal(sig.SignalType, sig.Score)
	a.logger.WithFields(logrus.Fields{
		"token_id": token.ID,
		"symbol":   token.Symbol,
		"type":     sig.SignalType,
		"score":    sig.Score,
		"wallets":  c.TransactionCount,
	}).Info("Accumulation signal persisted")

	if sig.Score >= a.cfg.Thresholds.AlertScoreFloor && a.alerts != nil {
		if err := a.alerts.Dispatch(ctx, token, sig); err != nil {
			a.logger.WithError(err).WithField("signal_id", sig.ID).Error("Alert dispatch failed")
		}
	}

	return nil
}

// scoreFloor returns the persistence floor for a signal type. Whale inflow
// and concentrated buys carry stricter floors than the global threshold.
func (a *Aggregator) scoreFloor(t storage.SignalType) float64 {
	switch t {
	case storage.SignalWhaleInflow:
		return a.cfg.Thresholds.WhaleInflowScoreFloor
	case storage.SignalConcentratedBuys:
		return a.cfg.Thresholds.ConcentratedBuysScoreFloor
	default:
		return a.cfg.Thresholds.SignalThreshold
	}
}

// refreshMetric recomputes the derived per-token row the screener reads.
func (a *Aggregator) refreshMetric(ctx context.Context, token *storage.Token, transfers []storage.Transfer, index *detector.WalletIndex) error {
	metric, err := a.store.GetTokenMetric(ctx, token.ID)
	if err != nil {
		return fmt.Errorf("load token metric: %w", err)
	}
	if metric == nil {
		metric = &storage.TokenMetric{TokenID: token.ID}
	}

	if a.stats != nil {
		stats, err := a.stats.GetTokenStats(ctx, token.Chain, token.ContractAddress)
		if err != nil {
			a.logger.WithError(err).WithField("token_id", token.ID).Warn("Stats refresh failed, keeping stale values")
		} else {
			metric.Volume24h = stats.Volume24h
			metric.PrevVolume24h = stats.PrevVolume24h
			metric.MarketCap = stats.MarketCap
			metric.PriceChange24h = stats.PriceChange24h
		}
	}

	metric.WhaleInflowPercent = whaleInflowPercent(transfers, index)

	// The derived score follows the most recent signal, superseding whatever
	// the token scored before. A token that stops firing decays to its latest
	// weaker signal instead of keeping its best score forever.
	latest, err := a.store.GetLatestSignal(ctx, token.ID)
	if err != nil {
		return fmt.Errorf("load latest signal: %w", err)
	}
	if latest == nil {
		metric.AccumulationScore = 0
		metric.LatestSignalType = ""
		metric.LatestSignalTS = 0
		metric.SmartWalletsCount = 0
	} else {
		metric.AccumulationScore = latest.Score
		metric.LatestSignalType = latest.SignalType
		metric.LatestSignalTS = latest.CreatedTS
		count, err := a.smartWalletCount(ctx, latest.Wallets())
		if err != nil {
			return err
		}
		metric.SmartWalletsCount = count
	}

	metric.Breakout = metric.PrevVolume24h > 0 &&
		metric.Volume24h >= a.cfg.Thresholds.BreakoutVolumeThreshold*metric.PrevVolume24h &&
		math.Abs(metric.PriceChange24h) >= a.cfg.Thresholds.BreakoutPriceChangeThreshold

	metric.UpdatedTS = time.Now().Unix()
	return a.store.UpsertTokenMetric(ctx, metric)
}

// smartWalletCount scores each involved wallet's history and counts those at
// or above the smart-wallet bar.
func (a *Aggregator) smartWalletCount(ctx context.Context, addrs []string) (int, error) {
	count := 0
	for _, addr := range addrs {
		history, err := a.store.GetTransfersForAddress(ctx, addr, a.cfg.PerfHistoryLimit)
		if err != nil {
			return 0, fmt.Errorf("wallet history for %s: %w", addr, err)
		}
		result := performance.Calculate(performance.FromTransfers(addr, history))
		if float64(performance.Score(result)) >= a.cfg.Thresholds.SmartWalletScore {
			count++
		}
	}
	return count, nil
}

// whaleInflowPercent is the share of window volume landing in tracked wallets.
func whaleInflowPercent(transfers []storage.Transfer, index *detector.WalletIndex) float64 {
	total := decimal.Zero
	whale := decimal.Zero
	for i := range transfers {
		tr := &transfers[i]
		total = total.Add(tr.Amount)
		if index.IsTracked(tr.ToAddress) {
			whale = whale.Add(tr.Amount)
		}
	}
	if total.IsZero() {
		return 0
	}
	pct, _ := whale.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	return math.Round(pct*100) / 100
}

// filterWellFormed drops rows that would poison detection arithmetic.
// Ingestion already rejects these; stored data from other writers may not.
func filterWellFormed(transfers []storage.Transfer) []storage.Transfer {
	out := transfers[:0]
	for i := range transfers {
		tr := &transfers[i]
		if !tr.Amount.IsPositive() || tr.FromAddress == "" || tr.ToAddress == "" {
			continue
		}
		out = append(out, transfers[i])
	}
	return out
}

func (a *Aggregator) retryWallets(ctx context.Context) ([]storage.Wallet, error) {
	return backoff.Retry(ctx, func() ([]storage.Wallet, error) {
		out, err := a.store.ListLabeledWallets(ctx)
		if err != nil && !storage.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
}

func (a *Aggregator) retryTokens(ctx context.Context) ([]storage.Token, error) {
	return backoff.Retry(ctx, func() ([]storage.Token, error) {
		out, err := a.store.ListActiveTokens(ctx)
		if err != nil && !storage.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
}
