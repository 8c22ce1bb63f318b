package repository

import (
	"context"
	"database/sql"

	"github.com/recallguard/recallguard-api/internal/models"
)

// UserRepository is read-only inside the pipeline; account management is
// out of scope.
type UserRepository interface {
	Get(ctx context.Context, userID string) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Get(ctx context.Context, userID string) (models.User, error) {
	const query = `SELECT id, email, email_opt_in, preferred_channel FROM users WHERE id = $1`
	var user models.User
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.EmailOptIn,
		&user.PreferredChannel,
	); err != nil {
		return models.User{}, err
	}

	const tokenQuery = `SELECT token FROM push_tokens WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, tokenQuery, userID)
	if err != nil {
		return models.User{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return models.User{}, err
		}
		user.PushTokens = append(user.PushTokens, token)
	}
	if err := rows.Err(); err != nil {
		return models.User{}, err
	}
	return user, nil
}
