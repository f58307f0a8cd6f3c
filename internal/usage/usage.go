// Package usage reshapes persisted call logs into monthly per-user,
// per-endpoint reports joined with subscription context.
package usage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vnmchuo/doc-gateway/internal/account"
	"github.com/vnmchuo/doc-gateway/internal/calllog"
)

// EndpointCalls is one (endpoint, call count) pair in a user's monthly list.
type EndpointCalls struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// UserUsage is one user's usage within a single month.
type UserUsage struct {
	UserID       int64           `json:"user_id"`
	Username     string          `json:"username"`
	Subscription *string         `json:"subscription"`
	Calls        []EndpointCalls `json:"call"`
}

// Report maps month keys ("YYYY-MM") to user ids to usage entries.
type Report map[string]map[string]*UserUsage

type CallStore interface {
	MonthlyEndpointCounts(ctx context.Context) ([]*calllog.EndpointCount, error)
}

type AccountStore interface {
	ListUsers(ctx context.Context) ([]*account.User, error)
	ListSubscriptionAssignments(ctx context.Context) ([]*account.SubscriptionAssignment, error)
}

type Aggregator struct {
	calls    CallStore
	accounts AccountStore
}

func NewAggregator(calls CallStore, accounts AccountStore) *Aggregator {
	return &Aggregator{calls: calls, accounts: accounts}
}

// Aggregate recomputes the full report from persisted rows. Rows whose user
// no longer exists are dropped; users without subscriptions report a nil
// subscription. The grouped rows arrive ordered by (month, user, endpoint),
// so repeated runs over an unchanged table produce identical reports.
func (a *Aggregator) Aggregate(ctx context.Context) (Report, error) {
	counts, err := a.calls.MonthlyEndpointCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load call counts: %w", err)
	}

	users, err := a.accounts.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	userMap := make(map[int64]*account.User, len(users))
	for _, u := range users {
		userMap[u.ID] = u
	}

	// Assignments are ordered by user, then end date descending: the first
	// row seen per user carries the latest-ending subscription.
	assignments, err := a.accounts.ListSubscriptionAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	subsMap := make(map[int64]string)
	for _, as := range assignments {
		if _, ok := subsMap[as.UserID]; !ok {
			subsMap[as.UserID] = as.SubscriptionName
		}
	}

	report := make(Report)
	for _, row := range counts {
		user, ok := userMap[row.UserID]
		if !ok {
			continue
		}

		monthEntry, ok := report[row.Month]
		if !ok {
			monthEntry = make(map[string]*UserUsage)
			report[row.Month] = monthEntry
		}

		uid := strconv.FormatInt(row.UserID, 10)
		entry, ok := monthEntry[uid]
		if !ok {
			entry = &UserUsage{
				UserID:   row.UserID,
				Username: user.Username,
			}
			if name, ok := subsMap[row.UserID]; ok {
				entry.Subscription = &name
			}
			monthEntry[uid] = entry
		}

		entry.Calls = append(entry.Calls, EndpointCalls{
			Endpoint: row.Endpoint,
			Count:    row.Count,
		})
	}

	return report, nil
}
