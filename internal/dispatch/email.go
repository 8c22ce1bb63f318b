package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/config"
	"github.com/recallguard/recallguard-api/internal/models"
)

type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   zerolog.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) (*EmailNotifier, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email notifier")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email notifier")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &EmailNotifier{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     from,
		logger:   logger.With().Str("notifier", "email").Logger(),
	}, nil
}

func (n *EmailNotifier) Channel() models.Channel { return models.ChannelEmail }

func (n *EmailNotifier) Notify(_ context.Context, delivery Delivery) error {
	if delivery.User == nil || strings.TrimSpace(delivery.User.Email) == "" {
		return fmt.Errorf("alert %s has no email recipient", delivery.Alert.ID)
	}
	recipient := strings.TrimSpace(delivery.User.Email)

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		n.from, recipient, delivery.Subject)

	message := []byte(headers + delivery.Body)
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	if err := smtp.SendMail(addr, auth, n.from, []string{recipient}, message); err != nil {
		return err
	}

	n.logger.Info().
		Str("alert_id", delivery.Alert.ID).
		Str("recall_id", delivery.Recall.ID).
		Msg("email alert sent")
	return nil
}

func (n *EmailNotifier) String() string {
	return "EmailNotifier"
}
