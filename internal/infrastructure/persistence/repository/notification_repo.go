package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
)

const notificationColumns = `id, user_id, title, message, link, data, is_read, attempts, delivered_at, created_at`

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *dbtx.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *dbtx.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a notification as unread and undelivered
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}
	if n.Data == nil {
		data = []byte("{}")
	}

	query := `
		INSERT INTO notifications (id, user_id, title, message, link, data, is_read, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`
	_, err = r.db.ExecContext(ctx, query, n.ID, n.UserID, n.Title, n.Message, n.Link, string(data), false, n.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create notification", zap.String("user_id", n.UserID), zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByUser returns a page of the user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, isRead *bool, page, limit int) ([]*entity.Notification, int, error) {
	clause := ` WHERE user_id = ?`
	args := []interface{}{userID}
	if isRead != nil {
		clause += ` AND is_read = ?`
		args = append(args, *isRead)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+clause, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count notifications", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	_, limit, offset := pageBounds(page, limit)
	query := `SELECT ` + notificationColumns + ` FROM notifications` + clause + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	notifications, err := r.query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

// MarkAsRead marks one of the user's notifications as read
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`, true, id, userID)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// MarkAllAsRead marks every unread notification of the user as read
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`, true, userID, false)
	if err != nil {
		r.logger.Error("Failed to mark all notifications read", zap.String("user_id", userID), zap.Error(err))
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

// ListUndelivered returns notifications waiting for the transport, oldest first
func (r *NotificationRepository) ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE delivered_at IS NULL AND attempts < ?
		ORDER BY created_at
		LIMIT ?`
	return r.query(ctx, query, maxAttempts, limit)
}

// MarkDelivered records the publish time
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET delivered_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark notification delivered", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return expectAffected(result, "notification", id)
}

// IncrementAttempts counts a failed publish
func (r *NotificationRepository) IncrementAttempts(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to increment notification attempts", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to increment attempts: %w", err)
	}
	return expectAffected(result, "notification", id)
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*entity.Notification{}
	for rows.Next() {
		var n entity.Notification
		var data string
		var deliveredAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Link, &data,
			&n.IsRead, &n.Attempts, &deliveredAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if data != "" && data != "{}" && data != "null" {
			if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
				r.logger.Warn("Ignoring malformed notification data", zap.String("id", n.ID), zap.Error(err))
			}
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time
			n.DeliveredAt = &t
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
