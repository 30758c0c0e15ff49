package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jsralgo/fxvault/internal/model"
)

const notificationColumns = `id, user_id, title, message, severity, is_read,
	 related_entity_type, related_entity_id, created_at`

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	err := row.Scan(
		&n.ID, &n.UserID, &n.Title, &n.Message, &n.Severity, &n.IsRead,
		&n.RelatedEntityType, &n.RelatedEntityID, &n.CreatedAt,
	)
	return n, err
}

// CreateNotification inserts a notification and publishes it on the
// LISTEN/NOTIFY channel so connected streams see it without polling.
// A publish failure is logged but does not fail the write.
func (db *DB) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	created, err := scanNotification(db.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, title, message, severity, related_entity_type, related_entity_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+notificationColumns,
		n.UserID, n.Title, n.Message, n.Severity, n.RelatedEntityType, n.RelatedEntityID,
	))
	if err != nil {
		return model.Notification{}, fmt.Errorf("storage: create notification: %w", err)
	}

	if payload, err := json.Marshal(created); err == nil {
		if err := db.Notify(ctx, ChannelNotifications, string(payload)); err != nil {
			db.logger.Warn("notification publish failed", "error", err)
		}
	}
	return created, nil
}

// ListNotifications returns a user's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// UnreadNotificationCount returns the number of unread notifications.
func (db *DB) UnreadNotificationCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND is_read = false`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: unread notification count: %w", err)
	}
	return count, nil
}

// MarkNotificationRead marks a single notification as read, scoped to its
// owner so one user cannot touch another's notifications.
func (db *DB) MarkNotificationRead(ctx context.Context, userID, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("storage: mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: notification %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification for a user.
func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteNotification removes a notification, scoped to its owner.
func (db *DB) DeleteNotification(ctx context.Context, userID, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: notification %d: %w", id, ErrNotFound)
	}
	return nil
}
