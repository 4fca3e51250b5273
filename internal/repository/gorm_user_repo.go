package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-support-chat/internal/domain"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// GetByID resolves an identity. Soft-deleted users are unknown.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	var model domain.UserModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return model.ToIdentity(), nil
}

// Upsert creates the user or refreshes its display name and role.
func (r *GormUserRepository) Upsert(ctx context.Context, identity *domain.Identity, email string) error {
	model := &domain.UserModel{
		ID:          identity.ID,
		Email:       email,
		DisplayName: identity.DisplayName,
		Role:        string(identity.Role),
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "role", "updated_at"}),
	}).Create(model)
	if result.Error != nil {
		return r.handleError(result.Error)
	}
	return nil
}

// handleError converts database-specific errors to repository errors.
func (r *GormUserRepository) handleError(err error) error {
	errStr := err.Error()

	// PostgreSQL / SQLite / MySQL unique constraint violation
	if strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "UNIQUE constraint") ||
		strings.Contains(errStr, "Duplicate entry") {
		if strings.Contains(errStr, "email") {
			return ErrEmailExists
		}
	}

	return err
}
