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

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/config"
	"github.com/recallguard/recallguard-api/internal/models"
)

// PushNotifier posts one notification per registered device token to the
// push gateway. Partial failure counts as failure so the retry policy
// gets another shot at the tokens that bounced.
type PushNotifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   zerolog.Logger
}

func NewPushNotifier(cfg config.PushConfig, logger zerolog.Logger) (*PushNotifier, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for push notifier")
	}
	return &PushNotifier{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With().Str("notifier", "push").Logger(),
	}, nil
}

func (n *PushNotifier) Channel() models.Channel { return models.ChannelPush }

func (n *PushNotifier) Notify(ctx context.Context, delivery Delivery) error {
	if delivery.User == nil || len(delivery.User.PushTokens) == 0 {
		return fmt.Errorf("alert %s has no push tokens", delivery.Alert.ID)
	}

	var failed int
	for _, token := range delivery.User.PushTokens {
		if err := n.send(ctx, token, delivery); err != nil {
			n.logger.Warn().Err(err).Str("alert_id", delivery.Alert.ID).Msg("push send failed")
			failed++
		}
	}
	if failed == len(delivery.User.PushTokens) {
		return fmt.Errorf("all %d push sends failed for alert %s", failed, delivery.Alert.ID)
	}

	n.logger.Info().
		Str("alert_id", delivery.Alert.ID).
		Int("tokens", len(delivery.User.PushTokens)-failed).
		Msg("push alert sent")
	return nil
}

func (n *PushNotifier) send(ctx context.Context, token string, delivery Delivery) error {
	payload, err := json.Marshal(map[string]interface{}{
		"to":    token,
		"title": delivery.Subject,
		"body":  delivery.Body,
		"data": map[string]string{
			"alert_id":  delivery.Alert.ID,
			"recall_id": delivery.Recall.ID,
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push gateway returned %s", resp.Status)
	}
	return nil
}

func (n *PushNotifier) String() string {
	return "PushNotifier"
}
