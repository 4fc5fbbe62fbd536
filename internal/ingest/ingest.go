package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/accumwatch/engine/internal/feed"
	"github.com/accumwatch/engine/internal/metrics"
	"github.com/accumwatch/engine/internal/storage"
)

const checkpointKey = "last_ingested_ts"

// Store is the storage surface the ingester needs
type Store interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
	GetToken(ctx context.Context, chain, contractAddress string) (*storage.Token, error)
	InsertTransfer(ctx context.Context, transfer *storage.Transfer) error
	EnsureWallet(ctx context.Context, address string) (*storage.Wallet, error)
	GetPosition(ctx context.Context, walletID, tokenID uint64) (*storage.WalletPosition, error)
	UpsertPosition(ctx context.Context, walletID, tokenID uint64, balance decimal.Decimal) error
}

// Source produces transfer events, oldest first
type Source interface {
	GetTransfers(ctx context.Context, sinceTS int64, limit int) (*feed.TransfersResponse, error)
}

// Ingester pulls transfer events from the feed into storage. Each event is
// validated, written append-only, and folded into wallet position snapshots.
// A checkpoint makes restarts resume where the last batch left off, and the
// (tx_hash, token_id) uniqueness makes overlap across restarts harmless.
type Ingester struct {
	store      Store
	source     Source
	batchLimit int
	logger     *logrus.Logger

	// token cache keyed by chain/contract, refreshed lazily
	tokenCache map[string]*storage.Token
}

// New creates an ingester
func New(store Store, source Source, batchLimit int, logger *logrus.Logger) *Ingester {
	return &Ingester{
		store:      store,
		source:     source,
		batchLimit: batchLimit,
		logger:     logger,
		tokenCache: make(map[string]*storage.Token),
	}
}

// RunOnce fetches and applies one batch of transfer events. Returns the
// number of events stored.
func (i *Ingester) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer metrics.RecordIngestBatch(start)

	sinceTS, err := i.checkpoint(ctx)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}

	resp, err := i.source.GetTransfers(ctx, sinceTS, i.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("fetch transfers: %w", err)
	}
	if resp.Count == 0 {
		return 0, nil
	}

	stored := 0
	maxTS := sinceTS
	for idx := range resp.Transfers {
		ev := &resp.Transfers[idx]
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		ok, err := i.apply(ctx, ev)
		if err != nil {
			// Store failures stop the batch before the checkpoint moves, so
			// the events after this one are re-fetched next cycle.
			return stored, fmt.Errorf("apply transfer %s: %w", ev.TxHash, err)
		}
		if ok {
			stored++
		}
		if ev.Timestamp > maxTS {
			maxTS = ev.Timestamp
		}
	}

	if maxTS > sinceTS {
		if err := i.store.SetState(ctx, checkpointKey, strconv.FormatInt(maxTS, 10)); err != nil {
			return stored, fmt.Errorf("save checkpoint: %w", err)
		}
	}

	i.logger.WithFields(logrus.Fields{
		"fetched":    resp.Count,
		"stored":     stored,
		"checkpoint": maxTS,
		"duration":   time.Since(start).String(),
	}).Info("Ingest batch complete")

	return stored, nil
}

// apply validates and stores a single event. Returns true when a new transfer
// row was written (duplicates and rejects return false, nil).
func (i *Ingester) apply(ctx context.Context, ev *feed.TransferEvent) (bool, error) {
	if err := validate(ev); err != nil {
		i.logger.WithFields(logrus.Fields{
			"tx_hash": ev.TxHash,
			"reason":  err.Error(),
		}).Warn("Skipping malformed transfer")
		metrics.RecordIngest("malformed")
		return false, nil
	}

	token, err := i.lookupToken(ctx, ev.Chain, ev.ContractAddress)
	if err != nil {
		return false, err
	}
	if token == nil {
		metrics.RecordIngest("unknown_token")
		return false, nil
	}

	from, err := i.store.EnsureWallet(ctx, ev.FromAddress)
	if err != nil {
		return false, err
	}
	to, err := i.store.EnsureWallet(ctx, ev.ToAddress)
	if err != nil {
		return false, err
	}

	transfer := &storage.Transfer{
		TxHash:       ev.TxHash,
		TokenID:      token.ID,
		FromAddress:  storage.NormalizeAddress(ev.FromAddress),
		ToAddress:    storage.NormalizeAddress(ev.ToAddress),
		Amount:       ev.Amount,
		ValueUSD:     ev.ValueUSD,
		BlockNumber:  ev.BlockNumber,
		TimestampSec: ev.Timestamp,
	}

	err = i.store.InsertTransfer(ctx, transfer)
	if storage.IsConflict(err) {
		// Already ingested in a previous run; positions were updated then.
		metrics.RecordIngest("duplicate")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := i.adjustPosition(ctx, to.ID, token.ID, ev.Amount); err != nil {
		return false, err
	}
	if err := i.adjustPosition(ctx, from.ID, token.ID, ev.Amount.Neg()); err != nil {
		return false, err
	}

	metrics.RecordIngest("success")
	return true, nil
}

// adjustPosition folds a signed delta into the (wallet, token) snapshot.
// Balances never go negative; mint-like sources simply stay at zero.
func (i *Ingester) adjustPosition(ctx context.Context, walletID, tokenID uint64, delta decimal.Decimal) error {
	pos, err := i.store.GetPosition(ctx, walletID, tokenID)
	if err != nil {
		return err
	}
	balance := delta
	if pos != nil {
		balance = pos.Balance.Add(delta)
	}
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	return i.store.UpsertPosition(ctx, walletID, tokenID, balance)
}

func (i *Ingester) lookupToken(ctx context.Context, chain, contract string) (*storage.Token, error) {
	key := chain + "/" + storage.NormalizeAddress(contract)
	if token, ok := i.tokenCache[key]; ok {
		return token, nil
	}
	token, err := i.store.GetToken(ctx, chain, contract)
	if err != nil {
		return nil, err
	}
	if token != nil {
		i.tokenCache[key] = token
	}
	return token, nil
}

func (i *Ingester) checkpoint(ctx context.Context) (int64, error) {
	raw, err := i.store.GetState(ctx, checkpointKey)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt checkpoint %q: %w", raw, err)
	}
	return ts, nil
}

func validate(ev *feed.TransferEvent) error {
	if ev.TxHash == "" {
		return fmt.Errorf("%w: empty tx hash", storage.ErrMalformedTransfer)
	}
	if ev.FromAddress == "" || ev.ToAddress == "" {
		return fmt.Errorf("%w: empty address", storage.ErrMalformedTransfer)
	}
	if ev.ContractAddress == "" || ev.Chain == "" {
		return fmt.Errorf("%w: missing token reference", storage.ErrMalformedTransfer)
	}
	if !ev.Amount.IsPositive() {
		return fmt.Errorf("%w: non-positive amount", storage.ErrMalformedTransfer)
	}
	if ev.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", storage.ErrMalformedTransfer)
	}
	return nil
}
