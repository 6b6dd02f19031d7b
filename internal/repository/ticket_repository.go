package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpilot/tracker/internal/domain"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const ticketSelect = `
        SELECT t.id, t.title, t.description, t.status, t.priority, t.type, t.due_date,
               t.created_by, c.name, c.email,
               t.assignee_id, a.name, a.email,
               t.version, t.created_at, t.updated_at
        FROM tickets t
        JOIN users c ON c.id = t.created_by
        LEFT JOIN users a ON a.id = t.assignee_id`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, title, description, status, priority, type, due_date,
                             created_by, assignee_id, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	pending := ticket.PendingHistory()
	offset := ticket.HistoryLen() - len(pending)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			ticket.ID,
			ticket.Title,
			ticket.Description,
			ticket.Status,
			ticket.Priority,
			ticket.Type,
			ticket.DueDate,
			ticket.CreatedBy.ID,
			assigneeID(ticket),
			ticket.Version,
			ticket.CreatedAt,
			ticket.UpdatedAt,
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, ticket.ID, offset, pending)
	})
	if err != nil {
		return translate(err)
	}
	ticket.MarkPersisted()
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, type=$5,
            due_date=$6, assignee_id=$7, version=version+1, updated_at=$8
        WHERE id=$9 AND version=$10`
	pending := ticket.PendingHistory()
	offset := ticket.HistoryLen() - len(pending)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, query,
			ticket.Title,
			ticket.Description,
			ticket.Status,
			ticket.Priority,
			ticket.Type,
			ticket.DueDate,
			assigneeID(ticket),
			ticket.UpdatedAt,
			ticket.ID,
			ticket.Version,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrStaleVersion
		}
		return insertHistory(ctx, tx, ticket.ID, offset, pending)
	})
	if err != nil {
		return translate(err)
	}
	ticket.Version++
	ticket.MarkPersisted()
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, ticketSelect+` WHERE t.id=$1`, id))
	if err != nil {
		return nil, err
	}
	tickets := []domain.Ticket{*ticket}
	if err := loadThreads(ctx, r.pool, tickets); err != nil {
		return nil, err
	}
	return &tickets[0], nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.VisibleTo != "" {
		p := next(filter.VisibleTo)
		clauses = append(clauses, fmt.Sprintf("(t.created_by=%s OR t.assignee_id=%s)", p, p))
	}
	if filter.CreatedBy != "" {
		clauses = append(clauses, "t.created_by="+next(filter.CreatedBy))
	}
	if filter.Status != "" {
		clauses = append(clauses, "t.status="+next(filter.Status))
	}
	if filter.Priority != "" {
		clauses = append(clauses, "t.priority="+next(filter.Priority))
	}
	if filter.Type != "" {
		clauses = append(clauses, "t.type="+next(filter.Type))
	}
	switch filter.Assignee {
	case "":
	case UnassignedFilter:
		clauses = append(clauses, "t.assignee_id IS NULL")
	default:
		clauses = append(clauses, "t.assignee_id="+next(filter.Assignee))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		p := next("%" + escapeLike(term) + "%")
		clauses = append(clauses, fmt.Sprintf("(t.title ILIKE %s OR t.description ILIKE %s)", p, p))
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.created_at DESC, t.id`, ticketSelect, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	rows.Close()
	if err := loadThreads(ctx, r.pool, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) AddAttachment(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO ticket_attachments (id, ticket_id, filename, path, original_name,
                                        content_type, size_bytes, checksum, uploaded_by, uploaded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `UPDATE tickets SET updated_at=$1 WHERE id=$2`, attachment.UploadedAt, attachment.TicketID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, query,
			attachment.ID,
			attachment.TicketID,
			attachment.Filename,
			attachment.Path,
			attachment.OriginalName,
			attachment.ContentType,
			attachment.SizeBytes,
			attachment.Checksum,
			nullable(attachment.UploadedBy),
			attachment.UploadedAt,
		)
		return err
	})
	return translate(err)
}

func (r *ticketRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.StatusCount
	for rows.Next() {
		var sc domain.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, translate(err)
		}
		result = append(result, sc)
	}
	return result, translate(rows.Err())
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket        domain.Ticket
		assigneeID    *string
		assigneeName  *string
		assigneeEmail *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Type,
		&ticket.DueDate,
		&ticket.CreatedBy.ID,
		&ticket.CreatedBy.Name,
		&ticket.CreatedBy.Email,
		&assigneeID,
		&assigneeName,
		&assigneeEmail,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	if assigneeID != nil {
		ticket.Assignee = &domain.UserRef{ID: *assigneeID, Name: deref(assigneeName), Email: deref(assigneeEmail)}
	}
	return &ticket, nil
}

func insertHistory(ctx context.Context, q querier, ticketID string, offset int, entries []domain.HistoryEntry) error {
	const query = `
        INSERT INTO ticket_history (id, ticket_id, position, actor_id, actor_name, action,
                                    field, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),NULLIF($9,''),$10)`
	for i, entry := range entries {
		if _, err := q.Exec(ctx, query,
			entry.ID,
			ticketID,
			offset+i,
			nullable(entry.Actor.ID),
			entry.Actor.Name,
			entry.Action,
			entry.Field,
			entry.OldValue,
			entry.NewValue,
			entry.Timestamp,
		); err != nil {
			return err
		}
	}
	return nil
}

// loadThreads fills history and attachments of every ticket with one
// query per table.
func loadThreads(ctx context.Context, q querier, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]string, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
	}
	history, err := loadHistory(ctx, q, ids)
	if err != nil {
		return err
	}
	attachments, err := loadAttachments(ctx, q, ids)
	if err != nil {
		return err
	}
	for i := range tickets {
		tickets[i].RestoreHistory(history[tickets[i].ID])
		tickets[i].Attachments = attachments[tickets[i].ID]
	}
	return nil
}

func loadHistory(ctx context.Context, q querier, ticketIDs []string) (map[string][]domain.HistoryEntry, error) {
	const query = `
        SELECT h.ticket_id, h.id, COALESCE(h.actor_id::text, ''), COALESCE(u.name, h.actor_name), COALESCE(u.email, ''),
               h.action, COALESCE(h.field, ''), COALESCE(h.old_value, ''), COALESCE(h.new_value, ''), h.created_at
        FROM ticket_history h
        LEFT JOIN users u ON u.id = h.actor_id
        WHERE h.ticket_id = ANY($1::uuid[]) ORDER BY h.ticket_id, h.position ASC`
	rows, err := q.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	result := make(map[string][]domain.HistoryEntry, len(ticketIDs))
	for rows.Next() {
		var (
			ticketID string
			entry    domain.HistoryEntry
		)
		if err := rows.Scan(
			&ticketID,
			&entry.ID,
			&entry.Actor.ID,
			&entry.Actor.Name,
			&entry.Actor.Email,
			&entry.Action,
			&entry.Field,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Timestamp,
		); err != nil {
			return nil, translate(err)
		}
		result[ticketID] = append(result[ticketID], entry)
	}
	return result, translate(rows.Err())
}

func loadAttachments(ctx context.Context, q querier, ticketIDs []string) (map[string][]domain.Attachment, error) {
	const query = `
        SELECT id, ticket_id, filename, path, original_name, content_type, size_bytes, checksum,
               COALESCE(uploaded_by::text, ''), uploaded_at
        FROM ticket_attachments WHERE ticket_id = ANY($1::uuid[]) ORDER BY uploaded_at ASC, id`
	rows, err := q.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	result := make(map[string][]domain.Attachment, len(ticketIDs))
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(
			&a.ID,
			&a.TicketID,
			&a.Filename,
			&a.Path,
			&a.OriginalName,
			&a.ContentType,
			&a.SizeBytes,
			&a.Checksum,
			&a.UploadedBy,
			&a.UploadedAt,
		); err != nil {
			return nil, translate(err)
		}
		result[a.TicketID] = append(result[a.TicketID], a)
	}
	return result, translate(rows.Err())
}

func assigneeID(ticket *domain.Ticket) *string {
	if ticket.Assignee == nil || ticket.Assignee.ID == "" {
		return nil
	}
	id := ticket.Assignee.ID
	return &id
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
