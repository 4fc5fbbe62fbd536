package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/accumwatch/engine/internal/metrics"
	"github.com/accumwatch/engine/internal/storage"
)

const maxSampleWallets = 5

// Store is the storage surface the dispatcher needs
type Store interface {
	ListProSubscriptions(ctx context.Context) ([]storage.Subscription, error)
	InsertAlert(ctx context.Context, alert *storage.Alert) error
	MarkAlertStatus(ctx context.Context, alertID string, status storage.AlertStatus) error
}

// Dispatcher fans a persisted signal out to every PRO subscriber whose
// threshold it clears. Each (subscriber, signal) pair gets an Alert row that
// moves PENDING to DELIVERED or FAILED, both terminal.
type Dispatcher struct {
	store       Store
	telegram    *TelegramSender // nil when telegram is not configured
	smtp        *SMTPSender     // nil when smtp is not configured
	fallback    Sender          // used when a subscriber has no usable channel
	environment string
	logger      *logrus.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(store Store, telegram *TelegramSender, smtp *SMTPSender, fallback Sender, environment string, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		telegram:    telegram,
		smtp:        smtp,
		fallback:    fallback,
		environment: environment,
		logger:      logger,
	}
}

// Dispatch notifies qualifying subscribers about a signal. Per-subscriber
// failures mark that alert FAILED and do not block the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, token *storage.Token, signal *storage.AccumulationSignal) error {
	subs, err := d.store.ListProSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	payload := d.buildPayload(token, signal)

	for i := range subs {
		sub := &subs[i]
		if signal.Score < sub.MinScore {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		d.notify(ctx, sub, signal, payload)
	}

	return nil
}

// notify delivers one (subscriber, signal) alert end to end.
func (d *Dispatcher) notify(ctx context.Context, sub *storage.Subscription, signal *storage.AccumulationSignal, payload *AlertPayload) {
	channels := d.channelsFor(sub)

	alert := &storage.Alert{
		ID:       uuid.NewString(),
		UserID:   sub.UserID,
		SignalID: signal.ID,
		Channels: strings.Join(channels, ","),
		Status:   string(storage.AlertPending),
	}
	if err := d.store.InsertAlert(ctx, alert); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   sub.UserID,
			"signal_id": signal.ID,
		}).Error("Failed to create alert record")
		return
	}
	metrics.AlertsCreated.Inc()

	var sendErr error
	for _, channel := range channels {
		var err error
		switch channel {
		case "telegram":
			err = d.telegram.SendTo(ctx, sub.TelegramChatID, payload)
		case "email":
			err = d.smtp.SendTo(ctx, []string{sub.Email}, payload)
		default:
			err = d.fallback.Send(ctx, payload)
		}
		metrics.RecordAlertSent(err == nil, channel)
		if err != nil {
			sendErr = err
			d.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":  sub.UserID,
				"alert_id": alert.ID,
				"channel":  channel,
			}).Error("Alert delivery failed")
		}
	}

	status := storage.AlertDelivered
	if sendErr != nil {
		status = storage.AlertFailed
	}
	if err := d.store.MarkAlertStatus(ctx, alert.ID, status); err != nil {
		d.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to update alert status")
	}
}

// channelsFor resolves a subscriber's deliverable channels, falling back to
// the default sender when none of the preferred ones are usable.
func (d *Dispatcher) channelsFor(sub *storage.Subscription) []string {
	var channels []string
	if sub.Telegram && sub.TelegramChatID != "" && d.telegram != nil {
		channels = append(channels, "telegram")
	}
	if sub.Email != "" && d.smtp != nil {
		channels = append(channels, "email")
	}
	if len(channels) == 0 {
		channels = append(channels, "log")
	}
	return channels
}

func (d *Dispatcher) buildPayload(token *storage.Token, signal *storage.AccumulationSignal) *AlertPayload {
	wallets := signal.Wallets()
	sample := wallets
	if len(sample) > maxSampleWallets {
		sample = sample[:maxSampleWallets]
	}

	return &AlertPayload{
		SignalID:         signal.ID,
		SignalType:       signal.SignalType,
		Score:            signal.Score,
		Chain:            token.Chain,
		TokenSymbol:      token.Symbol,
		TokenName:        token.Name,
		ContractAddress:  token.ContractAddress,
		ContractShort:    shortAddress(token.ContractAddress),
		WindowStart:      time.Unix(signal.WindowStartTS, 0),
		WindowEnd:        time.Unix(signal.WindowEndTS, 0),
		WalletCount:      len(wallets),
		SampleWallets:    sample,
		TransactionCount: signal.TransactionCount,
		TotalVolume:      signal.TotalVolume.String(),
		AverageBuySize:   signal.AverageBuySize.String(),
		Timestamp:        time.Now(),
		Environment:      d.environment,
	}
}
