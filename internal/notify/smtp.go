package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// SMTPNotifier sends plain-text alert mail. Retry policy is deliberately left
// to the mail infrastructure.
type SMTPNotifier struct {
	cfg config.SMTPConfig
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) Send(_ context.Context, alert model.Alert) error {
	if alert.Email == "" {
		return nil
	}
	subject, body := renderMail(alert)
	msg := strings.Join([]string{
		"From: " + n.cfg.From,
		"To: " + alert.Email,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if n.cfg.Username != "" {
		host := n.cfg.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, host)
	}
	if err := smtp.SendMail(n.cfg.Addr, auth, n.cfg.From, []string{alert.Email}, []byte(msg)); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	return nil
}

func renderMail(alert model.Alert) (subject, body string) {
	name := alert.DisplayName
	if name == "" {
		name = "there"
	}
	switch alert.Kind {
	case model.AlertEmpty:
		subject = "Your milk carton is empty"
		body = fmt.Sprintf("Hi %s,\n\nthe carton on scale %s has been empty for a while. Time to get a new one.\n", name, alert.DeviceID)
	case model.AlertCritical:
		subject = "Milk almost gone"
		body = fmt.Sprintf("Hi %s,\n\nonly %.0f g of milk left on scale %s. You will run out very soon.\n", name, alert.WeightGrams, alert.DeviceID)
	default:
		subject = "Milk running low"
		body = fmt.Sprintf("Hi %s,\n\n%.0f g of milk left on scale %s, below your %.0f g threshold.\n", name, alert.WeightGrams, alert.DeviceID, alert.ThresholdG)
	}
	return subject, body
}

func (n *SMTPNotifier) Close() error { return nil }
