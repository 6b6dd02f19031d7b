// Package sqlitestore implements the repository contracts on an embedded
// SQLite database through gorm. It backs local runs and the test suites.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/repository"
)

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// New wires every repository over db.
func New(db *gorm.DB) *repository.Store {
	return &repository.Store{
		Users:         &userRepository{db: db},
		Tickets:       &ticketRepository{db: db},
		Comments:      &commentRepository{db: db},
		Notifications: &notificationRepository{db: db},
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

// userRefs loads name and email for every id in one query.
func userRefs(tx *gorm.DB, ids []string) (map[string]domain.UserRef, error) {
	refs := make(map[string]domain.UserRef, len(ids))
	if len(ids) == 0 {
		return refs, nil
	}
	var rows []userRow
	if err := tx.Select("id", "name", "email").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		refs[r.ID] = domain.UserRef{ID: r.ID, Name: r.Name, Email: r.Email}
	}
	return refs, nil
}

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = user.CreatedAt
	row := toUserRow(user)
	return translate(r.db.WithContext(ctx).Create(&row).Error)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	user := row.toDomain()
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	user := row.toDomain()
	return &user, nil
}

func (r *userRepository) FindByEmails(ctx context.Context, emails []string) ([]domain.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	return r.find(r.db.WithContext(ctx).Where("email IN ?", emails))
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	return r.find(r.db.WithContext(ctx).Where("role = ?", string(role)).Order("created_at ASC"))
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	return r.find(r.db.WithContext(ctx).Order("created_at DESC"))
}

func (r *userRepository) find(q *gorm.DB) ([]domain.User, error) {
	var rows []userRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&userRow{}).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	res := r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).
		Updates(map[string]any{"role": string(role), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned int64
		if err := tx.Model(&ticketRow{}).Where("created_by = ?", id).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return repository.ErrReferenced
		}
		var assigned int64
		if err := tx.Model(&ticketRow{}).Where("assignee_id = ?", id).Count(&assigned).Error; err != nil {
			return err
		}
		if assigned > 0 {
			return repository.ErrStillAssigned
		}
		if err := tx.Model(&historyRow{}).Where("actor_id = ?", id).Update("actor_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&attachmentRow{}).Where("uploaded_by = ?", id).Update("uploaded_by", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", id).Delete(&commentRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipient_id = ?", id).Delete(&notificationRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&userRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		return nil
	}))
}
