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

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// SlackNotifier posts alerts to Slack. Subscriptions that name a channel
// go through the bot API; everything else falls back to the configured
// incoming webhook.
type SlackNotifier struct {
	webhookURL string
	botToken   string
	client     *http.Client
	logger     zerolog.Logger
}

func NewSlackNotifier(cfg config.SlackConfig, logger zerolog.Logger) (*SlackNotifier, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	botToken := strings.TrimSpace(cfg.BotToken)
	if webhookURL == "" && botToken == "" {
		return nil, fmt.Errorf("webhook_url or bot_token is required for slack notifier")
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		botToken:   botToken,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("notifier", "slack").Logger(),
	}, nil
}

func (n *SlackNotifier) Channel() models.Channel { return models.ChannelSlack }

func (n *SlackNotifier) Notify(ctx context.Context, delivery Delivery) error {
	text := fmt.Sprintf("*%s*\n%s", delivery.Subject, delivery.Body)

	var channel string
	if delivery.Subscription != nil {
		channel = strings.TrimSpace(delivery.Subscription.SlackChannel)
	}

	var err error
	switch {
	case channel != "" && n.botToken != "":
		err = n.postMessage(ctx, channel, text)
	case n.webhookURL != "":
		err = n.postWebhook(ctx, text)
	default:
		err = fmt.Errorf("no slack route for alert %s", delivery.Alert.ID)
	}
	if err != nil {
		return err
	}

	n.logger.Info().
		Str("alert_id", delivery.Alert.ID).
		Str("channel", channel).
		Msg("slack alert sent")
	return nil
}

func (n *SlackNotifier) postMessage(ctx context.Context, channel, text string) error {
	payload, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackPostMessageURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.botToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack api error: %s", result.Error)
	}
	return nil
}

func (n *SlackNotifier) postWebhook(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("slack webhook returned %s", resp.Status)
	}
	return nil
}

func (n *SlackNotifier) String() string {
	return "SlackNotifier"
}
