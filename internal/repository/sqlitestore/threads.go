package sqlitestore

import (
	"context"

	"gorm.io/gorm"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/repository"
)

type commentRepository struct {
	db *gorm.DB
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	row := commentRow{
		ID:        comment.ID,
		TicketID:  comment.TicketID,
		AuthorID:  comment.Author.ID,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt,
	}
	return translate(r.db.WithContext(ctx).Create(&row).Error)
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	db := r.db.WithContext(ctx)
	var rows []commentRow
	if err := db.Where("ticket_id = ?", ticketID).Order("created_at ASC").Order("id").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.AuthorID)
	}
	authors, err := userRefs(db, ids)
	if err != nil {
		return nil, translate(err)
	}
	comments := make([]domain.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, domain.Comment{
			ID:        row.ID,
			TicketID:  row.TicketID,
			Author:    refOf(authors, row.AuthorID),
			Text:      row.Text,
			CreatedAt: row.CreatedAt,
		})
	}
	return comments, nil
}

type notificationRepository struct {
	db *gorm.DB
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	row := notificationRow{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Message:     n.Message,
		Link:        n.Link,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
	return translate(r.db.WithContext(ctx).Create(&row).Error)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	var rows []notificationRow
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&notificationRow{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&n).Error
	return int(n), translate(err)
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&notificationRow{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("read", true)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, repository.ErrNotFound
	}
	var row notificationRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	n := row.toDomain()
	return &n, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&notificationRow{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true)
	return res.RowsAffected, translate(res.Error)
}

func (r *notificationRepository) DeleteByLink(ctx context.Context, link string) (int64, error) {
	if link == "" {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("link = ?", link).Delete(&notificationRow{})
	return res.RowsAffected, translate(res.Error)
}
