package sqlitestore

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/repository"
)

type ticketRepository struct {
	db *gorm.DB
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	pending := ticket.PendingHistory()
	offset := ticket.HistoryLen() - len(pending)
	row := toTicketRow(ticket)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return insertHistory(tx, ticket.ID, offset, pending)
	})
	if err != nil {
		return translate(err)
	}
	ticket.MarkPersisted()
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	pending := ticket.PendingHistory()
	offset := ticket.HistoryLen() - len(pending)
	row := toTicketRow(ticket)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ticketRow{}).
			Where("id = ? AND version = ?", ticket.ID, ticket.Version).
			Updates(map[string]any{
				"title":       row.Title,
				"description": row.Description,
				"status":      row.Status,
				"priority":    row.Priority,
				"type":        row.Type,
				"due_date":    row.DueDate,
				"assignee_id": row.AssigneeID,
				"updated_at":  row.UpdatedAt,
				"version":     gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&ticketRow{}).Where("id = ?", ticket.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return repository.ErrNotFound
			}
			return repository.ErrStaleVersion
		}
		return insertHistory(tx, ticket.ID, offset, pending)
	})
	if err != nil {
		return translate(err)
	}
	ticket.Version++
	ticket.MarkPersisted()
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	db := r.db.WithContext(ctx)
	var row ticketRow
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	tickets, err := hydrate(db, []ticketRow{row})
	if err != nil {
		return nil, err
	}
	if err := loadThreads(db, tickets); err != nil {
		return nil, err
	}
	return &tickets[0], nil
}

func (r *ticketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	q := r.db.WithContext(ctx).Model(&ticketRow{})
	if filter.VisibleTo != "" {
		q = q.Where("(created_by = ? OR assignee_id = ?)", filter.VisibleTo, filter.VisibleTo)
	}
	if filter.CreatedBy != "" {
		q = q.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", string(filter.Priority))
	}
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	switch filter.Assignee {
	case "":
	case repository.UnassignedFilter:
		q = q.Where("assignee_id IS NULL")
	default:
		q = q.Where("assignee_id = ?", filter.Assignee)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		q = q.Where(`(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	q = q.Order("created_at DESC").Order("id")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			q = q.Limit(-1)
		}
		q = q.Offset(filter.Offset)
	}

	var rows []ticketRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	db := r.db.WithContext(ctx)
	tickets, err := hydrate(db, rows)
	if err != nil {
		return nil, err
	}
	if err := loadThreads(db, tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&ticketRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		for _, model := range []any{&historyRow{}, &attachmentRow{}, &commentRow{}} {
			if err := tx.Where("ticket_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	}))
}

func (r *ticketRepository) AddAttachment(ctx context.Context, attachment *domain.Attachment) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ticketRow{}).Where("id = ?", attachment.TicketID).Update("updated_at", attachment.UploadedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		row := attachmentRow{
			ID:           attachment.ID,
			TicketID:     attachment.TicketID,
			Filename:     attachment.Filename,
			Path:         attachment.Path,
			OriginalName: attachment.OriginalName,
			ContentType:  attachment.ContentType,
			SizeBytes:    attachment.SizeBytes,
			Checksum:     attachment.Checksum,
			UploadedBy:   nullable(attachment.UploadedBy),
			UploadedAt:   attachment.UploadedAt,
		}
		return tx.Create(&row).Error
	}))
}

func (r *ticketRepository) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&ticketRow{}).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	var rows []struct {
		Status string
		Count  int
	}
	err := r.db.WithContext(ctx).Model(&ticketRow{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]domain.StatusCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.StatusCount{Status: domain.TicketStatus(row.Status), Count: row.Count})
	}
	return out, nil
}

func hydrate(db *gorm.DB, rows []ticketRow) ([]domain.Ticket, error) {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, row := range rows {
		add(row.CreatedBy)
		if row.AssigneeID != nil {
			add(*row.AssigneeID)
		}
	}
	refs, err := userRefs(db, ids)
	if err != nil {
		return nil, translate(err)
	}
	tickets := make([]domain.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, row.toDomain(refs))
	}
	return tickets, nil
}

// loadThreads fills history and attachments of every ticket with one
// query per table.
func loadThreads(db *gorm.DB, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]string, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
	}

	var history []historyRow
	if err := db.Where("ticket_id IN ?", ids).Order("ticket_id").Order("position ASC").Find(&history).Error; err != nil {
		return translate(err)
	}
	actorIDs := make([]string, 0, len(history))
	for _, h := range history {
		if h.ActorID != nil {
			actorIDs = append(actorIDs, *h.ActorID)
		}
	}
	actors, err := userRefs(db, actorIDs)
	if err != nil {
		return translate(err)
	}
	entries := make(map[string][]domain.HistoryEntry, len(ids))
	for _, h := range history {
		actor := domain.UserRef{Name: h.ActorName}
		if h.ActorID != nil {
			if ref, ok := actors[*h.ActorID]; ok {
				actor = ref
			} else {
				actor.ID = *h.ActorID
			}
		}
		entries[h.TicketID] = append(entries[h.TicketID], domain.HistoryEntry{
			ID:        h.ID,
			Actor:     actor,
			Action:    domain.HistoryAction(h.Action),
			Field:     h.Field,
			OldValue:  h.OldValue,
			NewValue:  h.NewValue,
			Timestamp: h.CreatedAt,
		})
	}

	var attachments []attachmentRow
	if err := db.Where("ticket_id IN ?", ids).Order("uploaded_at ASC").Order("id").Find(&attachments).Error; err != nil {
		return translate(err)
	}
	files := make(map[string][]domain.Attachment, len(ids))
	for _, a := range attachments {
		files[a.TicketID] = append(files[a.TicketID], a.toDomain())
	}

	for i := range tickets {
		tickets[i].RestoreHistory(entries[tickets[i].ID])
		tickets[i].Attachments = files[tickets[i].ID]
	}
	return nil
}

func insertHistory(tx *gorm.DB, ticketID string, offset int, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]historyRow, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, toHistoryRow(ticketID, offset+i, e))
	}
	return tx.Create(&rows).Error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
