package account

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrOverlappingSub = errors.New("user already has a subscription in this period")
)

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (u *User) MarshalBinary() ([]byte, error) {
	return json.Marshal(u)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (u *User) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, u)
}

type Subscription struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ReceiptScans int    `json:"receipt_scans"`
	InvoiceScans int    `json:"invoice_scans"`
	AnyScans     int    `json:"any_scans"`
}

// UserSubscription attaches a plan to a user for a date range.
type UserSubscription struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	SubscriptionID int64     `json:"subscription_id"`
	Amount         *float64  `json:"amount,omitempty"`
	DateFrom       time.Time `json:"date_from"`
	DateTo         time.Time `json:"date_to"`
	SubscribedAt   time.Time `json:"subscribed_at"`
}

// UserSubscriptionDetail is a UserSubscription joined with its plan.
type UserSubscriptionDetail struct {
	UserSubscription
	Subscription Subscription `json:"subscription"`
}

// SubscriptionAssignment is a flattened (user, plan name, end date) row used
// to pick each user's latest subscription.
type SubscriptionAssignment struct {
	UserID           int64
	SubscriptionName string
	DateTo           time.Time
}

type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	DeleteUser(ctx context.Context, id int64) error

	ListSubscriptions(ctx context.Context) ([]*Subscription, error)
	ListUserSubscriptions(ctx context.Context, userID int64) ([]*UserSubscriptionDetail, error)
	// ListSubscriptionAssignments returns all (user, plan) associations
	// ordered by user id, then end date descending.
	ListSubscriptionAssignments(ctx context.Context) ([]*SubscriptionAssignment, error)
	CreateUserSubscription(ctx context.Context, sub *UserSubscription) error
}
