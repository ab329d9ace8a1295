package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
)

// StatusLogRepository implements port.StatusLogRepository
type StatusLogRepository struct {
	db     *dbtx.DB
	logger *zap.Logger
}

// NewStatusLogRepository creates a new status log repository
func NewStatusLogRepository(db *dbtx.DB, logger *zap.Logger) port.StatusLogRepository {
	return &StatusLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a log row. The sequence is derived in the same statement so
// ordering never depends on clock resolution.
func (r *StatusLogRepository) Create(ctx context.Context, log *entity.RequestStatusLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	log.CreatedAt = log.CreatedAt.UTC()

	query := `
		INSERT INTO request_status_logs (id, request_id, sequence, status, responsible_id, notes, created_at)
		SELECT ?, ?, COALESCE(MAX(sequence), 0) + 1, ?, ?, ?, ?
		FROM request_status_logs
		WHERE request_id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.RequestID, log.Status, log.ResponsibleID, log.Notes, log.CreatedAt, log.RequestID)
	if err != nil {
		r.logger.Error("Failed to create status log",
			zap.String("request_id", log.RequestID), zap.String("status", log.Status), zap.Error(err))
		return fmt.Errorf("failed to create status log: %w", err)
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT sequence FROM request_status_logs WHERE id = ?`, log.ID,
	).Scan(&log.Sequence); err != nil {
		return fmt.Errorf("failed to read status log sequence: %w", err)
	}
	return nil
}

// ListByRequestID returns the request's log rows oldest first
func (r *StatusLogRepository) ListByRequestID(ctx context.Context, requestID string) ([]*entity.RequestStatusLog, error) {
	query := `
		SELECT id, request_id, sequence, status, responsible_id, notes, created_at
		FROM request_status_logs
		WHERE request_id = ?
		ORDER BY sequence
	`
	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list status logs", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list status logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.RequestStatusLog
	for rows.Next() {
		var l entity.RequestStatusLog
		if err := rows.Scan(&l.ID, &l.RequestID, &l.Sequence, &l.Status, &l.ResponsibleID, &l.Notes, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// Verify interface compliance
var _ port.StatusLogRepository = (*StatusLogRepository)(nil)
