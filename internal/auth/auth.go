package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/vnmchuo/doc-gateway/internal/account"
)

var ErrInvalidToken = errors.New("invalid token")

const tokenTTL = 30 * 24 * time.Hour

type Middleware func(next http.Handler) http.Handler

type contextKey string

const userKey contextKey = "user"

// NewToken signs an HS256 JWT whose subject is the user id.
func NewToken(secret string, userID int64) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token and returns the user id it carries.
func ParseToken(secret, tokenStr string) (int64, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// NewMiddleware validates Bearer tokens and resolves the current user,
// consulting Redis before the store.
func NewMiddleware(store account.Store, cache *redis.Client, secret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized: missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			userID, err := ParseToken(secret, tokenStr)
			if err != nil {
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			redisKey := fmt.Sprintf("auth:user:%d", userID)

			var user account.User
			err = cache.Get(ctx, redisKey).Scan(&user)
			if err == nil {
				// Cache hit
				next.ServeHTTP(w, r.WithContext(WithUser(ctx, &user)))
				return
			} else if err != redis.Nil {
				log.Printf("auth: redis error: %v", err)
			}

			// Cache miss or error: lookup in store
			u, err := store.GetUserByID(ctx, userID)
			if err != nil {
				if errors.Is(err, account.ErrUserNotFound) {
					http.Error(w, "Unauthorized: user not found", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			// Cache the result for 5 minutes
			_ = cache.Set(ctx, redisKey, u, 5*time.Minute).Err()

			next.ServeHTTP(w, r.WithContext(WithUser(ctx, u)))
		})
	}
}

// WithUser stores the authenticated user on the context.
func WithUser(ctx context.Context, user *account.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// CurrentUser returns the authenticated user, or nil for anonymous calls.
func CurrentUser(ctx context.Context) *account.User {
	if u, ok := ctx.Value(userKey).(*account.User); ok {
		return u
	}
	return nil
}

// UserID returns the authenticated user id, or 0 for anonymous calls.
func UserID(ctx context.Context) int64 {
	if u := CurrentUser(ctx); u != nil {
		return u.ID
	}
	return 0
}
