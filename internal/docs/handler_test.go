package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	extratelimit "github.com/vnmchuo/ratelimiter"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vnmchuo/doc-gateway/internal/account"
	"github.com/vnmchuo/doc-gateway/internal/auth"
	"github.com/vnmchuo/doc-gateway/internal/parser"
	"github.com/vnmchuo/doc-gateway/pkg/ratelimit"
)

// Mock Parser
type mockParser struct {
	parseResult map[string]any
	parseErr    error
	chatResult  string
	jsonResult  map[string]any

	lastPrompt string
	lastDoc    *parser.Document
	lastSchema *parser.Schema
}

func (m *mockParser) ParseDocument(ctx context.Context, prompt string, doc *parser.Document, schema *parser.Schema) (map[string]any, error) {
	m.lastPrompt = prompt
	m.lastDoc = doc
	m.lastSchema = schema
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	return m.parseResult, nil
}

func (m *mockParser) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	return m.jsonResult, nil
}

func (m *mockParser) Chat(ctx context.Context, prompt string) (string, error) {
	if m.parseErr != nil {
		return "", m.parseErr
	}
	return m.chatResult, nil
}

func (m *mockParser) Name() string { return "mock" }

// Mock Limiter Store
type mockLimiterStore struct {
	allowed bool
	err     error
}

func (m *mockLimiterStore) AllowN(ctx context.Context, key string, n int) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockLimiterStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockLimiterStore) Status(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func setupTest(p parser.Parser, limiterAllowed bool) *Handler {
	limiter := ratelimit.NewTestLimiter(&mockLimiterStore{allowed: limiterAllowed})
	tracer := noop.NewTracerProvider().Tracer("test")
	return NewHandler(p, limiter, tracer)
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), &account.User{ID: 7, Username: "alice"}))
}

func uploadRequest(t *testing.T, path, field, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart failed: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write part failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close writer failed: %v", err)
	}

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHandleReceiptParser_Unauthorized(t *testing.T) {
	h := setupTest(&mockParser{}, true)
	req := httptest.NewRequest("POST", "/ai/receipt-parser", nil)
	w := httptest.NewRecorder()

	h.HandleReceiptParser(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestHandleReceiptParser_RateLimited(t *testing.T) {
	h := setupTest(&mockParser{}, false)
	req := authed(httptest.NewRequest("POST", "/ai/receipt-parser", nil))
	w := httptest.NewRecorder()

	h.HandleReceiptParser(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60s" {
		t.Errorf("Expected Retry-After: 60s header, got %s", w.Header().Get("Retry-After"))
	}
}

func TestHandleReceiptParser_MissingFile(t *testing.T) {
	h := setupTest(&mockParser{}, true)
	req := authed(httptest.NewRequest("POST", "/ai/receipt-parser", strings.NewReader("not multipart")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleReceiptParser(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleReceiptParser_Success(t *testing.T) {
	p := &mockParser{parseResult: map[string]any{
		"merchant_name":  "ACME",
		"total_amount":   42.0,
		"invoice_number": "A-1",
		"invoice_date":   "2024-05-01",
	}}
	h := setupTest(p, true)

	content := []byte("png bytes")
	req := authed(uploadRequest(t, "/ai/receipt-parser", "image", "receipt.png", content, nil))
	w := httptest.NewRecorder()

	h.HandleReceiptParser(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["merchant_name"] != "ACME" {
		t.Errorf("Expected merchant ACME, got %v", resp["merchant_name"])
	}

	if p.lastDoc == nil || !bytes.Equal(p.lastDoc.Data, content) {
		t.Error("Parser did not receive the uploaded bytes")
	}
	if p.lastDoc.MIMEType != "image/png" {
		t.Errorf("Expected mime image/png, got %s", p.lastDoc.MIMEType)
	}
	if p.lastSchema == nil || len(p.lastSchema.Required) != 4 {
		t.Errorf("Expected receipt schema with 4 required fields, got %+v", p.lastSchema)
	}
}

func TestHandleClaimParser_CustomFields(t *testing.T) {
	p := &mockParser{parseResult: map[string]any{"policy_no": "P-9"}}
	h := setupTest(p, true)

	req := authed(uploadRequest(t, "/ai/vclaim-parser", "image", "claim.png", []byte("x"),
		map[string]string{"custom_fields": `{"policy_no":"string","claim_total":"number"}`}))
	w := httptest.NewRecorder()

	h.HandleClaimParser(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if p.lastSchema == nil || len(p.lastSchema.Properties) != 2 {
		t.Fatalf("Expected schema built from custom fields, got %+v", p.lastSchema)
	}
	if p.lastSchema.Properties["claim_total"].Type != parser.TypeNumber {
		t.Errorf("Expected claim_total as number, got %s", p.lastSchema.Properties["claim_total"].Type)
	}
	if !strings.Contains(p.lastPrompt, "policy_no") {
		t.Errorf("Expected prompt to list custom fields, got %q", p.lastPrompt)
	}
}

func TestHandleClaimParser_InvalidCustomFields(t *testing.T) {
	h := setupTest(&mockParser{}, true)

	req := authed(uploadRequest(t, "/ai/vclaim-parser", "image", "claim.png", []byte("x"),
		map[string]string{"custom_fields": `{broken`}))
	w := httptest.NewRecorder()

	h.HandleClaimParser(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleResumeParser_WithPositions(t *testing.T) {
	p := &mockParser{
		parseResult: map[string]any{"name": "Jane"},
		jsonResult: map[string]any{
			"matched_positions": []any{
				map[string]any{"position": "engineer", "reason": "skills match"},
			},
		},
	}
	h := setupTest(p, true)

	req := authed(uploadRequest(t, "/ai/resume-parser", "document", "cv.pdf", []byte("pdf"),
		map[string]string{"positions": "engineer"}))
	w := httptest.NewRecorder()

	h.HandleResumeParser(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["name"] != "Jane" {
		t.Errorf("Expected name Jane, got %v", resp["name"])
	}
	matches, ok := resp["matched_positions"].([]any)
	if !ok || len(matches) != 1 {
		t.Errorf("Expected 1 matched position, got %v", resp["matched_positions"])
	}
}

func TestHandleChat_Success(t *testing.T) {
	h := setupTest(&mockParser{chatResult: "summary text"}, true)

	body, _ := json.Marshal(map[string]string{"text": "summarize this"})
	req := authed(httptest.NewRequest("POST", "/ai/chat", bytes.NewReader(body)))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["result"] != "summary text" {
		t.Errorf("Expected result 'summary text', got %v", resp["result"])
	}
}

func TestHandleChat_InvalidBody(t *testing.T) {
	h := setupTest(&mockParser{}, true)

	req := authed(httptest.NewRequest("POST", "/ai/chat", strings.NewReader(`{invalid`)))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	h := setupTest(&mockParser{}, true)

	req := authed(httptest.NewRequest("POST", "/ai/status", nil))
	w := httptest.NewRecorder()

	h.HandleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["message"] != "ok" {
		t.Errorf("Expected message ok, got %v", resp["message"])
	}
}

func TestParserFailure_BadGateway(t *testing.T) {
	h := setupTest(&mockParser{parseErr: errors.New("model unavailable")}, true)

	req := authed(uploadRequest(t, "/ai/receipt-parser", "image", "r.png", []byte("x"), nil))
	w := httptest.NewRecorder()

	h.HandleReceiptParser(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", w.Code)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	h := setupTest(&mockParser{parseErr: errors.New("down")}, true)

	for i := 0; i < 4; i++ {
		req := authed(uploadRequest(t, "/ai/receipt-parser", "image", "r.png", []byte("x"), nil))
		w := httptest.NewRecorder()
		h.HandleReceiptParser(w, req)

		if w.Code != http.StatusBadGateway {
			t.Fatalf("call %d: expected 502, got %d", i, w.Code)
		}
	}

	// After three consecutive failures the breaker is open and the error
	// comes from gobreaker without touching the parser.
	var resp map[string]string
	req := authed(uploadRequest(t, "/ai/receipt-parser", "image", "r.png", []byte("x"), nil))
	w := httptest.NewRecorder()
	h.HandleReceiptParser(w, req)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.Contains(resp["error"], "open") {
		t.Errorf("Expected circuit-open error, got %q", resp["error"])
	}
}
