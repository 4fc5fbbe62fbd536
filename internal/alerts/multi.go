package alerts

import (
	"context"
	"errors"
	"fmt"
)

// MultiSender fans one alert out to several destinations. Every destination
// is attempted even when an earlier one fails.
type MultiSender struct {
	senders []Sender
}

// NewMultiSender combines senders into a single fan-out destination
func NewMultiSender(senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders}
}

// Send delivers the alert to every destination, joining any failures.
func (s *MultiSender) Send(ctx context.Context, payload *AlertPayload) error {
	var errs []error
	for i, sender := range s.senders {
		if err := sender.Send(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("sender %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
