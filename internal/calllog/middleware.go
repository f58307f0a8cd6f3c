package calllog

import (
	"bytes"
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vnmchuo/doc-gateway/internal/auth"
)

const maxUserAgentLen = 512

// Interceptor wraps every inbound call, captures request/response bodies
// without disturbing them, and persists one Record per completed call.
type Interceptor struct {
	store        Store
	skipPrefixes []string
	now          func() time.Time
}

func NewInterceptor(store Store) *Interceptor {
	return &Interceptor{
		store:        store,
		skipPrefixes: []string{"/docs", "/static"},
		now:          time.Now,
	}
}

func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range i.skipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		start := i.now()

		// Buffer the one-shot request body and hand the handler a replay
		// reader over the same bytes.
		var reqBody []byte
		if r.Body != nil && r.Body != http.NoBody {
			b, rc, err := CaptureBody(r.Body)
			if err != nil {
				log.Printf("calllog: failed to buffer request body: %v", err)
			} else {
				reqBody = b
				r.Body = rc
			}
		}

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		var (
			file        *FileMeta
			requestData *string
		)
		contentType := r.Header.Get("Content-Type")
		if r.Method == http.MethodPost {
			switch {
			case isMultipart(contentType):
				meta, err := ExtractFileMeta(contentType, reqBody)
				if err != nil {
					log.Printf("calllog: failed to extract file metadata: %v", err)
				} else {
					file = meta
				}
			case isJSON(contentType):
				data, err := CanonicalJSON(reqBody)
				if err != nil {
					log.Printf("calllog: failed to extract JSON body: %v", err)
				} else {
					requestData = &data
				}
			}
		}

		var responseData *string
		if isJSON(rec.Header().Get("Content-Type")) {
			if text, ok := DecodeText(rec.body.Bytes()); ok {
				responseData = &text
			}
		}

		end := i.now()
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		var userID *int64
		if id := auth.UserID(r.Context()); id != 0 {
			userID = &id
		}

		record := &Record{
			RequestID:    uuid.New().String(),
			Endpoint:     r.URL.Path,
			Method:       r.Method,
			RequestTime:  start,
			ResponseTime: end,
			DurationMs:   end.Sub(start).Milliseconds(),
			StatusCode:   status,
			ClientIP:     clientIP(r),
			UserAgent:    truncate(r.UserAgent(), maxUserAgentLen),
			File:         file,
			Success:      status >= 200 && status < 300,
			UserID:       userID,
			RequestData:  requestData,
			ResponseData: responseData,
		}

		// The response has already been written; a failed insert must not
		// surface to the caller.
		if err := i.store.Insert(context.WithoutCancel(r.Context()), record); err != nil {
			log.Printf("calllog: failed to persist call log: %v", err)
		}
	})
}

// responseRecorder tees response writes into a buffer while passing them
// through to the client unchanged.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
