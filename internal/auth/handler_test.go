package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/vnmchuo/doc-gateway/internal/account"
)

type mockAccountStore struct {
	account.Store
	getByUsernameFunc func(ctx context.Context, username string) (*account.User, error)
	getByIDFunc       func(ctx context.Context, id int64) (*account.User, error)
}

func (m *mockAccountStore) GetUserByUsername(ctx context.Context, username string) (*account.User, error) {
	if m.getByUsernameFunc != nil {
		return m.getByUsernameFunc(ctx, username)
	}
	return nil, account.ErrUserNotFound
}

func (m *mockAccountStore) GetUserByID(ctx context.Context, id int64) (*account.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, account.ErrUserNotFound
}

const testSecret = "test-secret"

func TestToken_RoundTrip(t *testing.T) {
	token, err := NewToken(testSecret, 42)
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}

	userID, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("Expected user id 42, got %d", userID)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _ := NewToken(testSecret, 42)

	if _, err := ParseToken("other-secret", token); err == nil {
		t.Error("Expected error for token signed with different secret")
	}
}

func TestParseToken_Garbage(t *testing.T) {
	if _, err := ParseToken(testSecret, "not.a.token"); err == nil {
		t.Error("Expected error for malformed token")
	}
}

func TestHandleLogin_Success(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	store := &mockAccountStore{
		getByUsernameFunc: func(ctx context.Context, username string) (*account.User, error) {
			if username != "alice" {
				return nil, account.ErrUserNotFound
			}
			return &account.User{ID: 7, Username: "alice", PasswordHash: string(hash)}, nil
		},
	}
	h := NewHandler(store, testSecret)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "hunter2"})
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)

	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatal("Expected a token in response")
	}
	userID, err := ParseToken(testSecret, token)
	if err != nil || userID != 7 {
		t.Errorf("Expected token for user 7, got %d (err=%v)", userID, err)
	}
	if resp["user_id"].(float64) != 7 {
		t.Errorf("Expected user_id 7, got %v", resp["user_id"])
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	store := &mockAccountStore{
		getByUsernameFunc: func(ctx context.Context, username string) (*account.User, error) {
			return &account.User{ID: 7, Username: "alice", PasswordHash: string(hash)}, nil
		},
	}
	h := NewHandler(store, testSecret)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleLogin(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestHandleLogin_UnknownUser(t *testing.T) {
	h := NewHandler(&mockAccountStore{}, testSecret)

	body, _ := json.Marshal(map[string]string{"username": "ghost", "password": "x"})
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleLogin(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestHandleLogin_InvalidBody(t *testing.T) {
	h := NewHandler(&mockAccountStore{}, testSecret)

	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{invalid`))
	w := httptest.NewRecorder()

	h.HandleLogin(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()
	if CurrentUser(ctx) != nil {
		t.Error("Expected nil user on empty context")
	}
	if UserID(ctx) != 0 {
		t.Error("Expected zero user id on empty context")
	}

	ctx = WithUser(ctx, &account.User{ID: 3, Username: "bob"})
	u := CurrentUser(ctx)
	if u == nil || u.ID != 3 {
		t.Errorf("Expected user 3, got %v", u)
	}
	if UserID(ctx) != 3 {
		t.Errorf("Expected user id 3, got %d", UserID(ctx))
	}
}
