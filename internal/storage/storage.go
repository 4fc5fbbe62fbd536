package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accumwatch/engine/internal/config"
	"github.com/accumwatch/engine/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the GORM database connection
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{conn: conn, log: log}, nil
}

// Ping verifies the connection is alive, for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs GORM auto-migration (for development only)
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&AppState{},
		&Token{},
		&Wallet{},
		&Transfer{},
		&WalletPosition{},
		&AccumulationSignal{},
		&Alert{},
		&Subscription{},
		&TokenMetric{},
	)
}

// translate maps driver errors into the store's error taxonomy: unique-key
// violations become ErrConflict, everything else is retryable.
func translate(op string, err error) error {
	if err == nil {
		metrics.DatabaseQueries.WithLabelValues(op, "success").Inc()
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		metrics.DatabaseQueries.WithLabelValues(op, "conflict").Inc()
		return ErrConflict
	}
	metrics.DatabaseQueries.WithLabelValues(op, "error").Inc()
	return &TransientError{Op: op, Err: err}
}

// GetState retrieves a state value by key
func (db *DB) GetState(ctx context.Context, key string) (string, error) {
	var state AppState
	result := db.conn.WithContext(ctx).Where("state_key = ?", key).First(&state)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if result.Error != nil {
		return "", translate("get_state", result.Error)
	}
	return state.StateValue, nil
}

// SetState sets a state value
func (db *DB) SetState(ctx context.Context, key, value string) error {
	state := AppState{
		StateKey:   key,
		StateValue: value,
		UpdatedTS:  time.Now().Unix(),
	}
	return translate("set_state", db.conn.WithContext(ctx).Save(&state).Error)
}

// InsertTransfer appends a transfer record. Returns ErrConflict when the same
// (tx_hash, token_id) was already ingested.
func (db *DB) InsertTransfer(ctx context.Context, transfer *Transfer) error {
	transfer.FromAddress = NormalizeAddress(transfer.FromAddress)
	transfer.ToAddress = NormalizeAddress(transfer.ToAddress)
	return translate("insert_transfer", db.conn.WithContext(ctx).Create(transfer).Error)
}

// GetTransfers returns transfers for a token within [fromTS, toTS), ordered
// by timestamp ascending.
func (db *DB) GetTransfers(ctx context.Context, tokenID uint64, fromTS, toTS int64) ([]Transfer, error) {
	var transfers []Transfer
	result := db.conn.WithContext(ctx).
		Where("token_id = ? AND timestamp_sec >= ? AND timestamp_sec < ?", tokenID, fromTS, toTS).
		Order("timestamp_sec ASC, id ASC").
		Find(&transfers)
	if result.Error != nil {
		return nil, translate("get_transfers", result.Error)
	}
	return transfers, nil
}

// GetTransfersForAddress returns up to limit transfers touching an address,
// oldest first. The limit bounds the performance calculator's working set.
func (db *DB) GetTransfersForAddress(ctx context.Context, address string, limit int) ([]Transfer, error) {
	address = NormalizeAddress(address)
	var transfers []Transfer
	q := db.conn.WithContext(ctx).
		Where("from_address = ? OR to_address = ?", address, address).
		Order("timestamp_sec ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	result := q.Find(&transfers)
	if result.Error != nil {
		return nil, translate("get_transfers_for_address", result.Error)
	}
	return transfers, nil
}

// GetWallet retrieves a wallet by address, nil if unknown.
func (db *DB) GetWallet(ctx context.Context, address string) (*Wallet, error) {
	var wallet Wallet
	result := db.conn.WithContext(ctx).Where("address = ?", NormalizeAddress(address)).First(&wallet)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, translate("get_wallet", result.Error)
	}
	return &wallet, nil
}

// EnsureWallet returns the wallet for an address, creating an untracked one
// lazily on first observation. Concurrent creates resolve via the unique index.
func (db *DB) EnsureWallet(ctx context.Context, address string) (*Wallet, error) {
	existing, err := db.GetWallet(ctx, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	wallet := &Wallet{Address: NormalizeAddress(address)}
	err = db.conn.WithContext(ctx).Create(wallet).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the race, read the winner.
		return db.GetWallet(ctx, address)
	}
	if err != nil {
		return nil, translate("ensure_wallet", err)
	}
	return wallet, nil
}

// ListLabeledWallets returns wallets that are tracked or carry a label
// (exchange, LP). This is the detectors' classification input.
func (db *DB) ListLabeledWallets(ctx context.Context) ([]Wallet, error) {
	var wallets []Wallet
	result := db.conn.WithContext(ctx).
		Where("tracked = ? OR label <> ''", true).
		Find(&wallets)
	if result.Error != nil {
		return nil, translate("list_labeled_wallets", result.Error)
	}
	return wallets, nil
}

// UpsertPosition sets the current balance snapshot for (wallet, token).
// Safe to retry: the write is an absolute value, not an increment.
func (db *DB) UpsertPosition(ctx context.Context, walletID, tokenID uint64, balance decimal.Decimal) error {
	pos := WalletPosition{
		WalletID:      walletID,
		TokenID:       tokenID,
		Balance:       balance,
		LastUpdatedTS: time.Now().Unix(),
	}
	return translate("upsert_position", db.conn.WithContext(ctx).Save(&pos).Error)
}

// GetPosition returns the holdings snapshot for (wallet, token), nil if none.
func (db *DB) GetPosition(ctx context.Context, walletID, tokenID uint64) (*WalletPosition, error) {
	var pos WalletPosition
	result := db.conn.WithContext(ctx).
		Where("wallet_id = ? AND token_id = ?", walletID, tokenID).
		First(&pos)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, translate("get_position", result.Error)
	}
	return &pos, nil
}

// InsertSignal persists an accumulation signal. Returns ErrConflict when the
// (token, type, window start) key already exists; callers treat that as dedup.
func (db *DB) InsertSignal(ctx context.Context, signal *AccumulationSignal) (string, error) {
	if _, err := ParseSignalType(signal.SignalType); err != nil {
		return "", fmt.Errorf("insert signal: %w", err)
	}
	if err := translate("insert_signal", db.conn.WithContext(ctx).Create(signal).Error); err != nil {
		return "", err
	}
	return signal.ID, nil
}

// GetSignalsSince returns signals of one type for a token created at or after
// sinceTS, newest first. Used by the aggregator's dedup check.
func (db *DB) GetSignalsSince(ctx context.Context, tokenID uint64, signalType SignalType, sinceTS int64) ([]AccumulationSignal, error) {
	var signals []AccumulationSignal
	result := db.conn.WithContext(ctx).
		Where("token_id = ? AND signal_type = ? AND created_ts >= ?", tokenID, string(signalType), sinceTS).
		Order("created_ts DESC").
		Find(&signals)
	if result.Error != nil {
		return nil, translate("get_signals_since", result.Error)
	}
	return signals, nil
}

// GetLatestSignal returns the most recent signal for a token across all
// types, nil if the token has never fired.
func (db *DB) GetLatestSignal(ctx context.Context, tokenID uint64) (*AccumulationSignal, error) {
	var signal AccumulationSignal
	result := db.conn.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("created_ts DESC").
		First(&signal)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, translate("get_latest_signal", result.Error)
	}
	return &signal, nil
}

// ListActiveTokens returns every token eligible for sweeping.
func (db *DB) ListActiveTokens(ctx context.Context) ([]Token, error) {
	var tokens []Token
	result := db.conn.WithContext(ctx).Where("active = ?", true).Find(&tokens)
	if result.Error != nil {
		return nil, translate("list_active_tokens", result.Error)
	}
	return tokens, nil
}

// GetToken retrieves a token by (chain, contract address), nil if unknown.
func (db *DB) GetToken(ctx context.Context, chain, contractAddress string) (*Token, error) {
	var token Token
	result := db.conn.WithContext(ctx).
		Where("chain = ? AND contract_address = ?", chain, NormalizeAddress(contractAddress)).
		First(&token)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, translate("get_token", result.Error)
	}
	return &token, nil
}

// UpsertToken creates the token if new, otherwise refreshes active + metadata.
func (db *DB) UpsertToken(ctx context.Context, token *Token) error {
	token.ContractAddress = NormalizeAddress(token.ContractAddress)
	existing, err := db.GetToken(ctx, token.Chain, token.ContractAddress)
	if err != nil {
		return err
	}
	if existing == nil {
		return translate("upsert_token", db.conn.WithContext(ctx).Create(token).Error)
	}
	token.ID = existing.ID
	updates := map[string]interface{}{
		"active":   token.Active,
		"metadata": token.Metadata,
	}
	return translate("upsert_token", db.conn.WithContext(ctx).
		Model(&Token{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error)
}

// UpsertTokenMetric replaces the derived metric row for a token.
func (db *DB) UpsertTokenMetric(ctx context.Context, metric *TokenMetric) error {
	metric.UpdatedTS = time.Now().Unix()
	return translate("upsert_token_metric", db.conn.WithContext(ctx).Save(metric).Error)
}

// GetTokenMetric returns the derived metric row for a token, nil if none yet.
func (db *DB) GetTokenMetric(ctx context.Context, tokenID uint64) (*TokenMetric, error) {
	var metric TokenMetric
	result := db.conn.WithContext(ctx).Where("token_id = ?", tokenID).First(&metric)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, translate("get_token_metric", result.Error)
	}
	return &metric, nil
}

// ListTokenMetrics returns the derived rows for all active tokens.
func (db *DB) ListTokenMetrics(ctx context.Context) ([]TokenMetric, error) {
	var rows []TokenMetric
	result := db.conn.WithContext(ctx).Find(&rows)
	if result.Error != nil {
		return nil, translate("list_token_metrics", result.Error)
	}
	return rows, nil
}

// ListProSubscriptions returns active PRO subscriptions.
func (db *DB) ListProSubscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	result := db.conn.WithContext(ctx).
		Where("plan = ? AND active = ?", string(PlanPro), true).
		Find(&subs)
	if result.Error != nil {
		return nil, translate("list_pro_subscriptions", result.Error)
	}
	return subs, nil
}

// InsertAlert creates an alert record in PENDING state.
func (db *DB) InsertAlert(ctx context.Context, alert *Alert) error {
	return translate("insert_alert", db.conn.WithContext(ctx).Create(alert).Error)
}

// MarkAlertStatus transitions an alert to a terminal state. PENDING rows only;
// DELIVERED/FAILED are never rewritten.
func (db *DB) MarkAlertStatus(ctx context.Context, alertID string, status AlertStatus) error {
	updates := map[string]interface{}{"status": string(status)}
	if status == AlertDelivered {
		updates["delivered_ts"] = time.Now().Unix()
	}
	return translate("mark_alert_status", db.conn.WithContext(ctx).
		Model(&Alert{}).
		Where("id = ? AND status = ?", alertID, string(AlertPending)).
		Updates(updates).Error)
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
