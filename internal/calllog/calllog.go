package calllog

import (
	"context"
	"time"
)

// FileMeta describes an uploaded file observed on a multipart request.
// All three fields are populated together or the struct is absent.
type FileMeta struct {
	ContentType string
	Filename    string
	SizeBytes   int64
}

// Record is one audit row per completed HTTP call.
type Record struct {
	ID           int64
	RequestID    string
	Endpoint     string
	Method       string
	RequestTime  time.Time
	ResponseTime time.Time
	DurationMs   int64
	StatusCode   int
	ClientIP     string
	UserAgent    string
	File         *FileMeta
	Success      bool
	ErrorMessage *string
	UserID       *int64
	RequestData  *string
	ResponseData *string
}

// EndpointCount is one grouped row of the monthly usage query.
type EndpointCount struct {
	UserID   int64
	Endpoint string
	Month    string // "YYYY-MM"
	Count    int64
}

type Store interface {
	Insert(ctx context.Context, rec *Record) error
	// MonthlyEndpointCounts returns call counts grouped by month, user and
	// endpoint, ordered by (month, user, endpoint). Anonymous calls are
	// excluded.
	MonthlyEndpointCounts(ctx context.Context) ([]*EndpointCount, error)
}
