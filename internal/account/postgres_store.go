package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameExists
	}

	u := &User{Username: username, PasswordHash: passwordHash}
	err = s.db.QueryRow(ctx, `
		INSERT INTO users (username, password)
		VALUES ($1, $2)
		RETURNING id
	`, username, passwordHash).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, password FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, password FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, username FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]*Subscription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, receipt_scans, invoice_scans, any_scans
		FROM subscriptions
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.ReceiptScans, &sub.InvoiceScans, &sub.AnyScans); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subs, nil
}

func (s *PostgresStore) ListUserSubscriptions(ctx context.Context, userID int64) ([]*UserSubscriptionDetail, error) {
	rows, err := s.db.Query(ctx, `
		SELECT us.id, us.user_id, us.subscription_id, us.amount, us.date_from, us.date_to, us.subscribed_at,
		       s.id, s.name, s.receipt_scans, s.invoice_scans, s.any_scans
		FROM user_subscription us
		JOIN subscriptions s ON s.id = us.subscription_id
		WHERE us.user_id = $1
		ORDER BY us.date_to DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user subscriptions: %w", err)
	}
	defer rows.Close()

	var details []*UserSubscriptionDetail
	for rows.Next() {
		var d UserSubscriptionDetail
		err := rows.Scan(
			&d.ID, &d.UserID, &d.SubscriptionID, &d.Amount, &d.DateFrom, &d.DateTo, &d.SubscribedAt,
			&d.Subscription.ID, &d.Subscription.Name,
			&d.Subscription.ReceiptScans, &d.Subscription.InvoiceScans, &d.Subscription.AnyScans,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user subscription: %w", err)
		}
		details = append(details, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user subscriptions: %w", err)
	}

	return details, nil
}

func (s *PostgresStore) ListSubscriptionAssignments(ctx context.Context) ([]*SubscriptionAssignment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT us.user_id, s.name, us.date_to
		FROM user_subscription us
		JOIN subscriptions s ON s.id = us.subscription_id
		ORDER BY us.user_id, us.date_to DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscription assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*SubscriptionAssignment
	for rows.Next() {
		var a SubscriptionAssignment
		if err := rows.Scan(&a.UserID, &a.SubscriptionName, &a.DateTo); err != nil {
			return nil, fmt.Errorf("failed to scan subscription assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription assignments: %w", err)
	}

	return assignments, nil
}

func (s *PostgresStore) CreateUserSubscription(ctx context.Context, sub *UserSubscription) error {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM user_subscription
			WHERE user_id = $1 AND date_to >= $2
		)
	`, sub.UserID, sub.DateFrom).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing subscription: %w", err)
	}
	if exists {
		return ErrOverlappingSub
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO user_subscription (user_id, subscription_id, amount, date_from, date_to, subscribed_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, subscribed_at
	`, sub.UserID, sub.SubscriptionID, sub.Amount, sub.DateFrom, sub.DateTo).Scan(&sub.ID, &sub.SubscribedAt)
	if err != nil {
		return fmt.Errorf("failed to create user subscription: %w", err)
	}

	return nil
}
