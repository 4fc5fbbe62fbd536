package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accumwatch/engine/internal/storage"
)

type fakeStore struct {
	subs     []storage.Subscription
	alerts   []*storage.Alert
	statuses map[string]storage.AlertStatus
}

func newFakeStore(subs ...storage.Subscription) *fakeStore {
	return &fakeStore{subs: subs, statuses: make(map[string]storage.AlertStatus)}
}

func (f *fakeStore) ListProSubscriptions(ctx context.Context) ([]storage.Subscription, error) {
	return f.subs, nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, alert *storage.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeStore) MarkAlertStatus(ctx context.Context, alertID string, status storage.AlertStatus) error {
	f.statuses[alertID] = status
	return nil
}

type fakeSender struct {
	sent []*AlertPayload
	err  error
}

func (f *fakeSender) Send(ctx context.Context, payload *AlertPayload) error {
	f.sent = append(f.sent, payload)
	return f.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testSignal(score float64) *storage.AccumulationSignal {
	sig := &storage.AccumulationSignal{
		ID:               "sig-1",
		TokenID:          1,
		SignalType:       string(storage.SignalWhaleInflow),
		Score:            score,
		WindowStartTS:    1000,
		WindowEndTS:      2000,
		TransactionCount: 3,
		TotalVolume:      decimal.NewFromInt(5000),
		AverageBuySize:   decimal.NewFromInt(1666),
	}
	sig.SetWallets([]string{"0xaaa", "0xbbb"})
	return sig
}

func testToken() *storage.Token {
	return &storage.Token{
		ID:              1,
		Chain:           "ethereum",
		Symbol:          "TKN",
		Name:            "Test Token",
		ContractAddress: "0x1000000000000000000000000000000000000001",
	}
}

func TestDispatchDeliversToQualifyingSubscribers(t *testing.T) {
	store := newFakeStore(
		storage.Subscription{UserID: "u1", Plan: string(storage.PlanPro), MinScore: 75, Active: true},
		storage.Subscription{UserID: "u2", Plan: string(storage.PlanPro), MinScore: 90, Active: true},
	)
	fallback := &fakeSender{}
	d := NewDispatcher(store, nil, nil, fallback, "test", quietLogger())

	err := d.Dispatch(context.Background(), testToken(), testSignal(82))
	require.NoError(t, err)

	// Only u1's threshold is cleared.
	require.Len(t, store.alerts, 1)
	alert := store.alerts[0]
	assert.Equal(t, "u1", alert.UserID)
	assert.Equal(t, "sig-1", alert.SignalID)
	assert.Equal(t, "log", alert.Channels)
	assert.Equal(t, storage.AlertDelivered, store.statuses[alert.ID])

	require.Len(t, fallback.sent, 1)
	payload := fallback.sent[0]
	assert.Equal(t, "WHALE_INFLOW", payload.SignalType)
	assert.Equal(t, 82.0, payload.Score)
	assert.Equal(t, 2, payload.WalletCount)
	assert.Equal(t, "TKN", payload.TokenSymbol)
}

func TestDispatchMarksFailedDeliveries(t *testing.T) {
	store := newFakeStore(
		storage.Subscription{UserID: "u1", Plan: string(storage.PlanPro), MinScore: 75, Active: true},
	)
	fallback := &fakeSender{err: errors.New("smtp down")}
	d := NewDispatcher(store, nil, nil, fallback, "test", quietLogger())

	err := d.Dispatch(context.Background(), testToken(), testSignal(82))
	require.NoError(t, err, "per-subscriber failures do not fail the dispatch")

	require.Len(t, store.alerts, 1)
	assert.Equal(t, storage.AlertFailed, store.statuses[store.alerts[0].ID])
}

func TestDispatchNoSubscribers(t *testing.T) {
	store := newFakeStore()
	fallback := &fakeSender{}
	d := NewDispatcher(store, nil, nil, fallback, "test", quietLogger())

	require.NoError(t, d.Dispatch(context.Background(), testToken(), testSignal(95)))
	assert.Empty(t, store.alerts)
	assert.Empty(t, fallback.sent)
}

func TestChannelsForPrefersConfiguredChannels(t *testing.T) {
	d := NewDispatcher(newFakeStore(), NewTelegramSender("tok", "chat"), nil, &fakeSender{}, "test", quietLogger())

	withTelegram := &storage.Subscription{Telegram: true, TelegramChatID: "123"}
	assert.Equal(t, []string{"telegram"}, d.channelsFor(withTelegram))

	// Email preference without a configured SMTP sender falls back to log.
	emailOnly := &storage.Subscription{Email: "user@example.com"}
	assert.Equal(t, []string{"log"}, d.channelsFor(emailOnly))

	nothing := &storage.Subscription{}
	assert.Equal(t, []string{"log"}, d.channelsFor(nothing))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x1000…0001", shortAddress("0x1000000000000000000000000000000000000001"))
	assert.Equal(t, "0xshort", shortAddress("0xshort"))
}

func TestMultiSenderAggregatesErrors(t *testing.T) {
	ok := &fakeSender{}
	bad := &fakeSender{err: errors.New("boom")}

	multi := NewMultiSender(ok, bad)
	err := multi.Send(context.Background(), &AlertPayload{})

	assert.Error(t, err)
	assert.Len(t, ok.sent, 1, "healthy senders still deliver")
}

func TestMultiSenderAllHealthy(t *testing.T) {
	first := &fakeSender{}
	second := &fakeSender{}

	multi := NewMultiSender(first, second)
	require.NoError(t, multi.Send(context.Background(), &AlertPayload{}))
	assert.Len(t, first.sent, 1)
	assert.Len(t, second.sent, 1)
}

func TestDispatcherMultiSenderFallbackDelivery(t *testing.T) {
	store := newFakeStore(
		storage.Subscription{UserID: "u1", Plan: string(storage.PlanPro), MinScore: 75, Active: true},
	)
	logDest := &fakeSender{}
	extra := &fakeSender{}
	d := NewDispatcher(store, nil, nil, NewMultiSender(logDest, extra), "test", quietLogger())

	require.NoError(t, d.Dispatch(context.Background(), testToken(), testSignal(82)))

	require.Len(t, store.alerts, 1)
	assert.Equal(t, storage.AlertDelivered, store.statuses[store.alerts[0].ID])
	assert.Len(t, logDest.sent, 1)
	assert.Len(t, extra.sent, 1)
}
