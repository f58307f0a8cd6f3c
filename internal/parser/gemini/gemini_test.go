package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vnmchuo/doc-gateway/internal/parser"
)

func mockServer(t *testing.T, text string, capture *geminiRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		}
		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{Content: geminiContent{Parts: []geminiPart{{Text: text}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestParseDocument_Mock(t *testing.T) {
	var captured geminiRequest
	server := mockServer(t, `{"merchant_name":"ACME","total_amount":12.5}`, &captured)
	defer server.Close()

	c := &Client{
		apiKey:  "test-key",
		model:   "gemini-2.0-flash",
		baseURL: server.URL,
	}

	doc := &parser.Document{MIMEType: "image/png", Data: []byte("fake image")}
	schema := &parser.Schema{
		Type:     parser.TypeObject,
		Required: []string{"merchant_name"},
		Properties: map[string]*parser.Schema{
			"merchant_name": {Type: parser.TypeString},
			"total_amount":  {Type: parser.TypeNumber},
		},
	}

	result, err := c.ParseDocument(context.Background(), "extract the receipt", doc, schema)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}

	if result["merchant_name"] != "ACME" {
		t.Errorf("Expected merchant ACME, got %v", result["merchant_name"])
	}
	if result["total_amount"].(float64) != 12.5 {
		t.Errorf("Expected total 12.5, got %v", result["total_amount"])
	}

	// The wire request must carry the prompt, the inline file and the schema.
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("Unexpected request shape: %+v", captured)
	}
	if captured.Contents[0].Parts[0].Text != "extract the receipt" {
		t.Errorf("Expected prompt part, got %q", captured.Contents[0].Parts[0].Text)
	}
	blob := captured.Contents[0].Parts[1].InlineData
	if blob == nil || blob.MIMEType != "image/png" || string(blob.Data) != "fake image" {
		t.Errorf("Unexpected inline data: %+v", blob)
	}
	if captured.GenerationConfig == nil || captured.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Error("Expected JSON response mime type in generation config")
	}
	if captured.GenerationConfig.ResponseSchema == nil {
		t.Error("Expected response schema in generation config")
	}
}

func TestParseDocument_WrappedJSON(t *testing.T) {
	server := mockServer(t, "Sure! Here you go: {\"invoice_no\":\"A-1\"}", nil)
	defer server.Close()

	c := &Client{apiKey: "k", model: "m", baseURL: server.URL}

	result, err := c.ParseDocument(context.Background(), "p", &parser.Document{MIMEType: "image/png", Data: []byte("x")}, nil)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	if result["invoice_no"] != "A-1" {
		t.Errorf("Expected invoice A-1, got %v", result["invoice_no"])
	}
}

func TestGenerateJSON_Mock(t *testing.T) {
	server := mockServer(t, `{"matched_positions":[{"position":"engineer","reason":"skills match"}]}`, nil)
	defer server.Close()

	c := &Client{apiKey: "k", model: "m", baseURL: server.URL}

	result, err := c.GenerateJSON(context.Background(), "match positions")
	if err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}
	matches := result["matched_positions"].([]any)
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
}

func TestChat_Mock(t *testing.T) {
	server := mockServer(t, "  hello there \n", nil)
	defer server.Close()

	c := &Client{apiKey: "k", model: "m", baseURL: server.URL}

	answer, err := c.Chat(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if answer != "hello there" {
		t.Errorf("Expected trimmed answer, got %q", answer)
	}
}

func TestGenerate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := &Client{apiKey: "k", model: "m", baseURL: server.URL}

	if _, err := c.Chat(context.Background(), "hi"); err == nil {
		t.Error("Expected error for non-200 response")
	}
}

func TestGenerate_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiResponse{})
	}))
	defer server.Close()

	c := &Client{apiKey: "k", model: "m", baseURL: server.URL}

	if _, err := c.Chat(context.Background(), "hi"); err == nil {
		t.Error("Expected error when response has no candidates")
	}
}
