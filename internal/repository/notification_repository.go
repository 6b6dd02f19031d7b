package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpilot/tracker/internal/domain"
)

const notificationColumns = `id, recipient_id, message, COALESCE(link, ''), read, created_at`

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (id, recipient_id, message, link, read, created_at)
        VALUES ($1,$2,$3,NULLIF($4,''),$5,$6)`
	_, err := r.pool.Exec(ctx, query, n.ID, n.RecipientID, n.Message, n.Link, n.Read, n.CreatedAt)
	return translate(err)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	const query = `SELECT ` + notificationColumns + `
        FROM notifications WHERE recipient_id=$1 ORDER BY created_at DESC, id`
	rows, err := r.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, translate(rows.Err())
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT read`, recipientID).Scan(&n)
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	const query = `
        UPDATE notifications SET read=TRUE
        WHERE id=$1 AND recipient_id=$2
        RETURNING ` + notificationColumns
	return scanNotification(r.pool.QueryRow(ctx, query, id, recipientID))
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE recipient_id=$1 AND NOT read`, recipientID)
	if err != nil {
		return 0, translate(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) DeleteByLink(ctx context.Context, link string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE link=$1`, link)
	if err != nil {
		return 0, translate(err)
	}
	return cmd.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(&n.ID, &n.RecipientID, &n.Message, &n.Link, &n.Read, &n.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &n, nil
}
