package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender sends alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, payload *AlertPayload) error {
	s.log.WithFields(logrus.Fields{
		"signal_id":    payload.SignalID,
		"signal_type":  payload.SignalType,
		"score":        payload.Score,
		"token":        payload.TokenSymbol,
		"chain":        payload.Chain,
		"contract":     payload.ContractShort,
		"wallets":      payload.WalletCount,
		"transactions": payload.TransactionCount,
		"total_volume": payload.TotalVolume,
	}).Info("Accumulation alert generated")
	return nil
}
