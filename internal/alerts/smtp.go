package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPSender sends alerts via email
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(host string, port int, user, password, from string, to []string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		to:       to,
	}
}

// Send sends the alert via email to the configured recipients
func (s *SMTPSender) Send(ctx context.Context, payload *AlertPayload) error {
	return s.SendTo(ctx, s.to, payload)
}

// SendTo sends the alert via email to explicit recipients
func (s *SMTPSender) SendTo(ctx context.Context, to []string, payload *AlertPayload) error {
	if len(to) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	subject := fmt.Sprintf("[%s] %s accumulation on %s (score %.0f)",
		payload.SignalType, payload.TokenSymbol, payload.Chain, payload.Score)
	body := s.buildEmailBody(payload)

	message := fmt.Sprintf("From: %s\r\n", s.from)
	message += fmt.Sprintf("To: %s\r\n", strings.Join(to, ", "))
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", s.user, s.password, s.host)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, to, []byte(message))
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

func (s *SMTPSender) buildEmailBody(payload *AlertPayload) string {
	body := fmt.Sprintf("ACCUMWATCH SIGNAL - %s\n", payload.SignalType)
	body += "═══════════════════════════════════════\n\n"
	body += "An accumulation signal has crossed your alert threshold:\n\n"
	body += "TOKEN\n"
	body += "─────────────────────────────────────\n"
	body += fmt.Sprintf("Symbol:         %s (%s)\n", payload.TokenSymbol, payload.TokenName)
	body += fmt.Sprintf("Chain:          %s\n", payload.Chain)
	body += fmt.Sprintf("Contract:       %s\n\n", payload.ContractAddress)
	body += "SIGNAL\n"
	body += "─────────────────────────────────────\n"
	body += fmt.Sprintf("Type:           %s\n", payload.SignalType)
	body += fmt.Sprintf("Score:          %.2f / 100\n", payload.Score)
	body += fmt.Sprintf("Window:         %s -> %s\n",
		payload.WindowStart.UTC().Format(time.RFC3339),
		payload.WindowEnd.UTC().Format(time.RFC3339))
	body += fmt.Sprintf("Wallets:        %d\n", payload.WalletCount)
	body += fmt.Sprintf("Transactions:   %d\n", payload.TransactionCount)
	body += fmt.Sprintf("Total Volume:   %s\n", payload.TotalVolume)
	body += fmt.Sprintf("Avg Buy Size:   %s\n\n", payload.AverageBuySize)

	if len(payload.SampleWallets) > 0 {
		body += "INVOLVED WALLETS (sample)\n"
		body += "─────────────────────────────────────\n"
		for _, addr := range payload.SampleWallets {
			body += fmt.Sprintf("%s\n", addr)
		}
		body += "\n"
	}

	body += "═══════════════════════════════════════\n"
	body += fmt.Sprintf("Environment: %s\n", payload.Environment)
	body += fmt.Sprintf("Generated: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	body += "\nNote: accumulation signals describe on-chain flow patterns;\n"
	body += "they are NOT investment advice.\n"

	return body
}
