package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresStore wires every Postgres repository over one pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Users:         NewUserRepository(pool),
		Tickets:       NewTicketRepository(pool),
		Comments:      NewCommentRepository(pool),
		Notifications: NewNotificationRepository(pool),
		Ping:          pool.Ping,
	}
}
