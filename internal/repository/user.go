package repository

import (
	"context"

	"github.com/rxline/rxline/internal/database"
	"github.com/rxline/rxline/internal/models"
)

const userColumns = `user_id, user_name, timezone, contact_name, contact_email, contact_chat_id, created_at`

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64, userName string) (*models.User, error) {
	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO users (user_id, user_name) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_name = EXCLUDED.user_name
		 RETURNING `+userColumns,
		userID, userName,
	).Scan(&user.UserID, &user.UserName, &user.Timezone, &user.ContactName,
		&user.ContactEmail, &user.ContactChatID, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`,
		userID,
	).Scan(&user.UserID, &user.UserName, &user.Timezone, &user.ContactName,
		&user.ContactEmail, &user.ContactChatID, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) SetTimezone(ctx context.Context, userID int64, timezone string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET timezone = $1 WHERE user_id = $2`,
		timezone, userID,
	)
	return err
}

func (r *UserRepository) SetContact(ctx context.Context, userID int64, name, email string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET contact_name = $1, contact_email = $2 WHERE user_id = $3`,
		name, email, userID,
	)
	return err
}

// LinkContactChat records the contact's Telegram chat so escalation alerts
// can be delivered directly.
func (r *UserRepository) LinkContactChat(ctx context.Context, userID int64, chatID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET contact_chat_id = $1 WHERE user_id = $2`,
		chatID, userID,
	)
	return err
}
