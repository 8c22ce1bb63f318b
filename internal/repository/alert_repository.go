package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/recallguard/recallguard-api/internal/models"
)

// InsertOutcome reports what an alert insert attempt did. Duplicate keys
// are data, not errors: concurrent schedulers race on the uniqueness
// constraint and the loser simply observes OutcomeAlreadyExists.
type InsertOutcome int

const (
	OutcomeInserted InsertOutcome = iota
	OutcomeAlreadyExists
)

// ErrAlreadySent is returned when a state transition targets an alert
// whose sent_at is already set.
var ErrAlreadySent = errors.New("alert already marked sent")

const uniqueViolation = pq.ErrorCode("23505")

type CreateAlertParams struct {
	UserID         *string
	RecallID       string
	ProductID      *string
	SubscriptionID *string
	RemedySeq      int
	Channel        models.Channel
}

type AlertRepository interface {
	Create(ctx context.Context, params CreateAlertParams) (models.Alert, InsertOutcome, error)
	Get(ctx context.Context, alertID string) (models.Alert, error)
	// MarkSent records successful delivery; sent_at is authoritative for
	// "already delivered, do not resend".
	MarkSent(ctx context.Context, alertID string) error
	MarkFailed(ctx context.Context, alertID, errorMessage string) error
	ListPending(ctx context.Context, limit int) ([]models.Alert, error)
	// ListNotifiedUserIDs returns the users that already hold an alert for
	// the recall; the remedy poller re-alerts exactly this set.
	ListNotifiedUserIDs(ctx context.Context, recallID string) ([]string, error)
}

type alertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

const alertColumns = `id, user_id, recall_id, product_id, subscription_id, remedy_seq,
	channel, status, error_message, created_at, sent_at`

func (r *alertRepository) Create(ctx context.Context, params CreateAlertParams) (models.Alert, InsertOutcome, error) {
	const query = `
		INSERT INTO alerts (user_id, recall_id, product_id, subscription_id, remedy_seq, channel)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + alertColumns + `
	`

	row := r.db.QueryRowContext(ctx, query,
		nullString(params.UserID),
		params.RecallID,
		nullString(params.ProductID),
		nullString(params.SubscriptionID),
		params.RemedySeq,
		params.Channel,
	)

	var alert models.Alert
	if err := scanAlert(row, &alert); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.Alert{}, OutcomeAlreadyExists, nil
		}
		return models.Alert{}, OutcomeInserted, err
	}
	return alert, OutcomeInserted, nil
}

func (r *alertRepository) Get(ctx context.Context, alertID string) (models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	var alert models.Alert
	if err := scanAlert(r.db.QueryRowContext(ctx, query, strings.TrimSpace(alertID)), &alert); err != nil {
		return models.Alert{}, err
	}
	return alert, nil
}

func (r *alertRepository) MarkSent(ctx context.Context, alertID string) error {
	const query = `
		UPDATE alerts
		SET status = 'sent', sent_at = NOW(), error_message = NULL
		WHERE id = $1 AND sent_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, alertID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadySent
	}
	return nil
}

func (r *alertRepository) MarkFailed(ctx context.Context, alertID, errorMessage string) error {
	const query = `
		UPDATE alerts
		SET status = 'failed', error_message = $2
		WHERE id = $1 AND sent_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, alertID, errorMessage)
	return err
}

func (r *alertRepository) ListPending(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var alert models.Alert
		if err := scanAlert(rows, &alert); err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *alertRepository) ListNotifiedUserIDs(ctx context.Context, recallID string) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM alerts WHERE recall_id = $1 AND user_id IS NOT NULL`
	rows, err := r.db.QueryContext(ctx, query, recallID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return userIDs, nil
}

func scanAlert(scanner interface {
	Scan(dest ...interface{}) error
}, alert *models.Alert) error {
	var (
		userID         sql.NullString
		productID      sql.NullString
		subscriptionID sql.NullString
		errorMessage   sql.NullString
		sentAt         sql.NullTime
	)

	if err := scanner.Scan(
		&alert.ID,
		&userID,
		&alert.RecallID,
		&productID,
		&subscriptionID,
		&alert.RemedySeq,
		&alert.Channel,
		&alert.Status,
		&errorMessage,
		&alert.CreatedAt,
		&sentAt,
	); err != nil {
		return err
	}

	alert.UserID = nullStringPtr(userID)
	alert.ProductID = nullStringPtr(productID)
	alert.SubscriptionID = nullStringPtr(subscriptionID)
	alert.ErrorMessage = nullStringPtr(errorMessage)
	if sentAt.Valid {
		t := sentAt.Time
		alert.SentAt = &t
	}
	return nil
}

func nullString(s *string) interface{} {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return strings.TrimSpace(*s)
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
