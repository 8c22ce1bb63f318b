package repository

import (
	"context"
	"database/sql"

	"github.com/recallguard/recallguard-api/internal/models"
)

// SubscriptionRepository is read-only inside the pipeline.
type SubscriptionRepository interface {
	ListAll(ctx context.Context) ([]models.Subscription, error)
	Get(ctx context.Context, subscriptionID string) (models.Subscription, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `id, kind, user_id, source, product_query, slack_channel, webhook_url, created_at`

func (r *subscriptionRepository) ListAll(ctx context.Context) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := scanSubscription(rows, &sub); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepository) Get(ctx context.Context, subscriptionID string) (models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	var sub models.Subscription
	if err := scanSubscription(r.db.QueryRowContext(ctx, query, subscriptionID), &sub); err != nil {
		return models.Subscription{}, err
	}
	return sub, nil
}

func scanSubscription(scanner interface {
	Scan(dest ...interface{}) error
}, sub *models.Subscription) error {
	var userID sql.NullString
	if err := scanner.Scan(
		&sub.ID,
		&sub.Kind,
		&userID,
		&sub.Source,
		&sub.ProductQuery,
		&sub.SlackChannel,
		&sub.WebhookURL,
		&sub.CreatedAt,
	); err != nil {
		return err
	}
	sub.UserID = nullStringPtr(userID)
	return nil
}
