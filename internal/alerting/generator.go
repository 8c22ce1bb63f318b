package alerting

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/dispatch"
	"github.com/recallguard/recallguard-api/internal/match"
	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/repository"
)

// Generator turns match candidates into alert rows. At-most-once per
// (user, recall, product, subscription, remedy sequence) is enforced by
// the alerts uniqueness constraint, never by pre-checks: the generator
// always attempts the insert and branches on the outcome.
type Generator struct {
	alerts   repository.AlertRepository
	users    repository.UserRepository
	enqueuer dispatch.Enqueuer
	broker   *dispatch.Broker
	logger   zerolog.Logger
}

// Enqueue failures leave the alert pending; the pending sweeper picks it
// up on the next pass.
func NewGenerator(alerts repository.AlertRepository, users repository.UserRepository, enqueuer dispatch.Enqueuer, broker *dispatch.Broker, logger zerolog.Logger) *Generator {
	return &Generator{
		alerts:   alerts,
		users:    users,
		enqueuer: enqueuer,
		broker:   broker,
		logger:   logger.With().Str("component", "alert_generator").Logger(),
	}
}

// CreateAlerts inserts one alert per candidate and enqueues delivery for
// every row that was actually inserted. Returns the number created.
func (g *Generator) CreateAlerts(ctx context.Context, candidates []match.Candidate) (int, error) {
	userCache := make(map[string]models.User)
	created := 0

	for i := range candidates {
		candidate := candidates[i]

		channel, ok := g.resolveChannel(ctx, &candidate, userCache)
		if !ok {
			continue
		}

		params := repository.CreateAlertParams{
			UserID:   candidate.UserID,
			RecallID: candidate.Recall.ID,
			Channel:  channel,
		}
		if candidate.Product != nil {
			params.ProductID = &candidate.Product.ID
		}
		if candidate.Subscription != nil {
			params.SubscriptionID = &candidate.Subscription.ID
		}

		n, err := g.create(ctx, params)
		if err != nil {
			g.logger.Error().Err(err).Str("recall_id", candidate.Recall.ID).Msg("alert insert failed")
			continue
		}
		created += n
	}
	return created, nil
}

// CreateRemedyAlerts re-alerts the users already notified about a recall
// after its remedy changed. remedySeq is the ordinal of the new remedy
// entry, so each remedy change alerts each user at most once.
func (g *Generator) CreateRemedyAlerts(ctx context.Context, recall models.Recall, userIDs []string, remedySeq int) (int, error) {
	userCache := make(map[string]models.User)
	created := 0

	for _, userID := range userIDs {
		uid := userID
		channel, ok := g.userChannel(ctx, uid, userCache)
		if !ok {
			continue
		}
		n, err := g.create(ctx, repository.CreateAlertParams{
			UserID:    &uid,
			RecallID:  recall.ID,
			RemedySeq: remedySeq,
			Channel:   channel,
		})
		if err != nil {
			g.logger.Error().Err(err).Str("recall_id", recall.ID).Str("user_id", uid).Msg("remedy alert insert failed")
			continue
		}
		created += n
	}
	return created, nil
}

func (g *Generator) create(ctx context.Context, params repository.CreateAlertParams) (int, error) {
	alert, outcome, err := g.alerts.Create(ctx, params)
	if err != nil {
		return 0, err
	}
	if outcome == repository.OutcomeAlreadyExists {
		return 0, nil
	}

	if err := g.enqueuer.Enqueue(ctx, alert); err != nil {
		// The row stays pending; the sweeper retries delivery later.
		g.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("delivery enqueue failed")
	}
	if g.broker != nil {
		g.broker.Publish(dispatch.TopicAlerts, alert)
	}
	return 1, nil
}

// resolveChannel picks the delivery channel for a candidate. Channel-owned
// subscriptions dictate their own channel; user targets follow the user's
// preference with the email opt-in respected.
func (g *Generator) resolveChannel(ctx context.Context, candidate *match.Candidate, cache map[string]models.User) (models.Channel, bool) {
	if candidate.Subscription != nil && candidate.Subscription.Kind != models.SubscriptionKindUser {
		return candidate.Subscription.Channel(), true
	}
	if candidate.UserID == nil {
		return "", false
	}
	return g.userChannel(ctx, *candidate.UserID, cache)
}

func (g *Generator) userChannel(ctx context.Context, userID string, cache map[string]models.User) (models.Channel, bool) {
	user, ok := cache[userID]
	if !ok {
		loaded, err := g.users.Get(ctx, userID)
		if err != nil {
			g.logger.Error().Err(err).Str("user_id", userID).Msg("user lookup failed")
			return "", false
		}
		user = loaded
		cache[userID] = user
	}

	channel := models.Channel(strings.TrimSpace(string(user.PreferredChannel)))
	if channel == "" {
		channel = models.ChannelEmail
	}
	if channel == models.ChannelEmail && !user.EmailOptIn {
		if len(user.PushTokens) > 0 {
			return models.ChannelPush, true
		}
		return "", false
	}
	return channel, true
}
