package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/accumwatch/engine/internal/ratelimit"
)

// TelegramSender sends alerts via the Telegram Bot API. Requests are rate
// limited to stay under the Bot API's per-chat message ceiling.
type TelegramSender struct {
	botToken      string
	defaultChatID string
	httpClient    *http.Client
	limiter       *ratelimit.Limiter
}

// NewTelegramSender creates a new Telegram sender
func NewTelegramSender(botToken, defaultChatID string) *TelegramSender {
	return &TelegramSender{
		botToken:      botToken,
		defaultChatID: defaultChatID,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		limiter:       ratelimit.New(1.0),
	}
}

// Send sends the alert to the default chat
func (s *TelegramSender) Send(ctx context.Context, payload *AlertPayload) error {
	return s.SendTo(ctx, s.defaultChatID, payload)
}

// SendTo sends the alert to a specific chat
func (s *TelegramSender) SendTo(ctx context.Context, chatID string, payload *AlertPayload) error {
	if chatID == "" {
		return fmt.Errorf("no telegram chat id configured")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       s.buildMessage(payload),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

func (s *TelegramSender) buildMessage(payload *AlertPayload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📈 *Accumulation signal: %s*\n\n", payload.SignalType)
	fmt.Fprintf(&b, "*%s* (%s) on %s\n", payload.TokenSymbol, truncate(payload.TokenName, 40), payload.Chain)
	fmt.Fprintf(&b, "Contract: `%s`\n\n", payload.ContractShort)
	fmt.Fprintf(&b, "Score: *%.2f/100*\n", payload.Score)
	fmt.Fprintf(&b, "Wallets involved: %d\n", payload.WalletCount)
	fmt.Fprintf(&b, "Transactions: %d\n", payload.TransactionCount)
	fmt.Fprintf(&b, "Total volume: %s\n", payload.TotalVolume)
	fmt.Fprintf(&b, "Avg buy size: %s\n\n", payload.AverageBuySize)
	fmt.Fprintf(&b, "Window: %s → %s\n",
		payload.WindowStart.UTC().Format("Jan 2 15:04"),
		payload.WindowEnd.UTC().Format("Jan 2 15:04 UTC"))

	if len(payload.SampleWallets) > 0 {
		b.WriteString("\nTop wallets:\n")
		for _, addr := range payload.SampleWallets {
			fmt.Fprintf(&b, "`%s`\n", shortAddress(addr))
		}
	}

	fmt.Fprintf(&b, "\n_%s • %s_", payload.Environment, payload.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))

	return truncate(b.String(), 4000)
}
