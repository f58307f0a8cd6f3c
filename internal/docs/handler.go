package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/doc-gateway/internal/account"
	"github.com/vnmchuo/doc-gateway/internal/auth"
	"github.com/vnmchuo/doc-gateway/internal/parser"
	"github.com/vnmchuo/doc-gateway/pkg/ratelimit"
)

const maxUploadMemory = 32 << 20

// Handler serves the /ai document-understanding routes, proxying uploads to
// the parser behind a rate limit and a circuit breaker.
type Handler struct {
	parser  parser.Parser
	breaker *gobreaker.CircuitBreaker
	limiter *ratelimit.Limiter
	tracer  trace.Tracer
}

func NewHandler(p parser.Parser, limiter *ratelimit.Limiter, tracer trace.Tracer) *Handler {
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Handler{
		parser:  p,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: limiter,
		tracer:  tracer,
	}
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := h.prepare(w, r); err != nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (h *Handler) HandleReceiptParser(w http.ResponseWriter, r *http.Request) {
	user, err := h.prepare(w, r)
	if err != nil {
		return
	}

	doc, err := readUpload(r, "image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "docs.receipt_parser")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user_id", user.ID),
		attribute.String("file_type", doc.MIMEType),
	)

	result, err := h.parseDocument(ctx, receiptPrompt, doc, receiptSchema())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleClaimParser(w http.ResponseWriter, r *http.Request) {
	user, err := h.prepare(w, r)
	if err != nil {
		return
	}

	doc, err := readUpload(r, "image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	fields := defaultClaimFields()
	if raw := r.FormValue("custom_fields"); raw != "" {
		custom := make(map[string]string)
		if err := json.Unmarshal([]byte(raw), &custom); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid custom_fields JSON"})
			return
		}
		fields = custom
	}

	ctx, span := h.tracer.Start(r.Context(), "docs.claim_parser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", user.ID))

	result, err := h.parseDocument(ctx, claimPrompt(fields), doc, parser.SchemaFromFields(fields))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleResumeParser(w http.ResponseWriter, r *http.Request) {
	user, err := h.prepare(w, r)
	if err != nil {
		return
	}

	doc, err := readUpload(r, "document")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	positions := r.MultipartForm.Value["positions"]

	ctx, span := h.tracer.Start(r.Context(), "docs.resume_parser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", user.ID))

	result, err := h.parseDocument(ctx, resumePrompt, doc, resumeSchema())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	// Optionally match the candidate against the supplied positions.
	if len(positions) > 0 {
		matched, err := h.matchPositions(ctx, result, positions)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		result["matched_positions"] = matched
	}

	writeJSON(w, http.StatusOK, result)
}

type chatRequest struct {
	Text string `json:"text"`
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.prepare(w, r)
	if err != nil {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "docs.chat")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", user.ID))

	answer, err := h.breaker.Execute(func() (any, error) {
		return h.parser.Chat(ctx, req.Text)
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": answer.(string)})
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (*account.User, error) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return nil, fmt.Errorf("unauthorized")
	}

	allowed, err := h.limiter.Allow(r.Context(), user.ID)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60s")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return nil, fmt.Errorf("rate limit exceeded")
	}

	return user, nil
}

func (h *Handler) parseDocument(ctx context.Context, prompt string, doc *parser.Document, schema *parser.Schema) (map[string]any, error) {
	result, err := h.breaker.Execute(func() (any, error) {
		return h.parser.ParseDocument(ctx, prompt, doc, schema)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

func (h *Handler) matchPositions(ctx context.Context, resume map[string]any, positions []string) (any, error) {
	resumeJSON, err := json.MarshalIndent(resume, "", "  ")
	if err != nil {
		return nil, err
	}
	positionsJSON, err := json.Marshal(positions)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Based on the candidate's resume data below, determine which of the following job positions "+
			"they are best suited for. For each match, explain briefly why they are suitable.\n\n"+
			"Candidate resume:\n%s\n\n"+
			"Available positions:\n%s\n\n"+
			"Return the result in this JSON format:\n"+
			"{ matched_positions: [ { position: string, reason: string } ] }",
		resumeJSON, positionsJSON,
	)

	matched, err := h.breaker.Execute(func() (any, error) {
		return h.parser.GenerateJSON(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return matched.(map[string]any)["matched_positions"], nil
}

func readUpload(r *http.Request, field string) (*parser.Document, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, fmt.Errorf("invalid multipart form")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s file is required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file", field)
	}

	return &parser.Document{
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
