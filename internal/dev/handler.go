// Package dev serves the developer-token-guarded management surface: user
// and subscription administration plus the monthly usage report.
package dev

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vnmchuo/doc-gateway/internal/account"
	"github.com/vnmchuo/doc-gateway/internal/usage"
)

type Handler struct {
	accounts   account.Store
	aggregator *usage.Aggregator
	token      string
}

func NewHandler(accounts account.Store, aggregator *usage.Aggregator, token string) *Handler {
	return &Handler{
		accounts:   accounts,
		aggregator: aggregator,
		token:      token,
	}
}

// Middleware rejects calls that do not carry the developer token.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not allowed"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not allowed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to hash password"})
		return
	}

	user, err := h.accounts.CreateUser(r.Context(), req.Username, string(hash))
	if err != nil {
		if errors.Is(err, account.ErrUsernameExists) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username already exists"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "user created",
		"user_id": user.ID,
	})
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListUsers(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}

	user, err := h.accounts.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	subs, err := h.accounts.ListUserSubscriptions(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type subView struct {
		ID           int64    `json:"id"`
		Name         string   `json:"name"`
		ReceiptScans int      `json:"receipt_scans"`
		InvoiceScans int      `json:"invoice_scans"`
		AnyScans     int      `json:"any_scans"`
		DateFrom     string   `json:"date_from"`
		DateTo       string   `json:"date_to"`
		Amount       *float64 `json:"amount"`
	}

	views := make([]subView, 0, len(subs))
	for _, s := range subs {
		views = append(views, subView{
			ID:           s.Subscription.ID,
			Name:         s.Subscription.Name,
			ReceiptScans: s.Subscription.ReceiptScans,
			InvoiceScans: s.Subscription.InvoiceScans,
			AnyScans:     s.Subscription.AnyScans,
			DateFrom:     s.DateFrom.Format("2006-01-02"),
			DateTo:       s.DateTo.Format("2006-01-02"),
			Amount:       s.Amount,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            user.ID,
		"username":      user.Username,
		"subscriptions": views,
	})
}

func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}

	if err := h.accounts.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "user deleted"})
}

func (h *Handler) HandleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.accounts.ListSubscriptions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

type createUserSubscriptionRequest struct {
	UserID         int64    `json:"user_id"`
	SubscriptionID int64    `json:"subscription_id"`
	DateFrom       string   `json:"date_from"`
	DateTo         string   `json:"date_to"`
	Amount         *float64 `json:"amount"`
}

func (h *Handler) HandleCreateUserSubscription(w http.ResponseWriter, r *http.Request) {
	var req createUserSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	dateFrom, err := time.Parse("2006-01-02", req.DateFrom)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date_from (use YYYY-MM-DD)"})
		return
	}
	dateTo, err := time.Parse("2006-01-02", req.DateTo)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date_to (use YYYY-MM-DD)"})
		return
	}

	sub := &account.UserSubscription{
		UserID:         req.UserID,
		SubscriptionID: req.SubscriptionID,
		Amount:         req.Amount,
		DateFrom:       dateFrom,
		DateTo:         dateTo,
	}

	if err := h.accounts.CreateUserSubscription(r.Context(), sub); err != nil {
		if errors.Is(err, account.ErrOverlappingSub) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user already has an active subscription in this period"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "subscription created",
		"data": map[string]any{
			"id":              sub.ID,
			"user_id":         sub.UserID,
			"subscription_id": sub.SubscriptionID,
			"date_from":       sub.DateFrom.Format("2006-01-02"),
			"date_to":         sub.DateTo.Format("2006-01-02"),
		},
	})
}

func (h *Handler) HandleMonthlyUsage(w http.ResponseWriter, r *http.Request) {
	report, err := h.aggregator.Aggregate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
