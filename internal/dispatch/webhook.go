package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
)

// WebhookNotifier POSTs the alert and its recall to a partner-registered
// URL. Requests carry a short-lived HS256 token so receivers can verify
// the payload came from us.
type WebhookNotifier struct {
	signingSecret string
	client        *http.Client
	logger        zerolog.Logger
}

func NewWebhookNotifier(signingSecret string, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		signingSecret: signingSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
		logger:        logger.With().Str("notifier", "webhook").Logger(),
	}
}

func (n *WebhookNotifier) Channel() models.Channel { return models.ChannelWebhook }

func (n *WebhookNotifier) Notify(ctx context.Context, delivery Delivery) error {
	if delivery.Subscription == nil || strings.TrimSpace(delivery.Subscription.WebhookURL) == "" {
		return fmt.Errorf("alert %s has no webhook url", delivery.Alert.ID)
	}
	targetURL := strings.TrimSpace(delivery.Subscription.WebhookURL)

	payload, err := json.Marshal(map[string]interface{}{
		"alert_id":   delivery.Alert.ID,
		"remedy_seq": delivery.Alert.RemedySeq,
		"recall":     delivery.Recall,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if n.signingSecret != "" {
		token, err := n.signToken(delivery.Alert.ID)
		if err != nil {
			return fmt.Errorf("sign webhook token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook receiver returned %s", resp.Status)
	}

	n.logger.Info().
		Str("alert_id", delivery.Alert.ID).
		Str("url", targetURL).
		Msg("webhook alert sent")
	return nil
}

func (n *WebhookNotifier) signToken(alertID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   alertID,
		Issuer:    "recallguard",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(n.signingSecret))
}

func (n *WebhookNotifier) String() string {
	return "WebhookNotifier"
}
