package calllog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	var fileType, filename *string
	var fileSize *int64
	if rec.File != nil {
		fileType = &rec.File.ContentType
		filename = &rec.File.Filename
		fileSize = &rec.File.SizeBytes
	}

	query := `
		INSERT INTO api_call_logs (
			request_id, endpoint, method, request_time, response_time, duration_ms,
			status_code, client_ip, user_agent, file_type, filename, file_size_bytes,
			response_success, error_message, user_id, request_data, response_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`
	err := s.db.QueryRow(ctx, query,
		rec.RequestID, rec.Endpoint, rec.Method, rec.RequestTime, rec.ResponseTime, rec.DurationMs,
		rec.StatusCode, rec.ClientIP, rec.UserAgent, fileType, filename, fileSize,
		rec.Success, rec.ErrorMessage, rec.UserID, rec.RequestData, rec.ResponseData,
	).Scan(&rec.ID)

	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}

	return nil
}

func (s *PostgresStore) MonthlyEndpointCounts(ctx context.Context) ([]*EndpointCount, error) {
	query := `
		SELECT user_id, endpoint, to_char(request_time, 'YYYY-MM') AS month, count(*)
		FROM api_call_logs
		WHERE user_id IS NOT NULL
		GROUP BY user_id, endpoint, month
		ORDER BY month, user_id, endpoint
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly counts: %w", err)
	}
	defer rows.Close()

	var counts []*EndpointCount
	for rows.Next() {
		var c EndpointCount
		if err := rows.Scan(&c.UserID, &c.Endpoint, &c.Month, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan monthly count: %w", err)
		}
		counts = append(counts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly counts: %w", err)
	}

	return counts, nil
}
