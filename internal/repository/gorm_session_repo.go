package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-support-chat/internal/domain"
)

// GormSessionRepository implements SessionRepository using GORM.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GORM-based session repository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Create stores a new session and its opening system message atomically.
func (r *GormSessionRepository) Create(ctx context.Context, session *domain.ChatSession, opening *domain.Message) error {
	model := domain.SessionToModel(session)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if opening != nil {
			return tx.Create(domain.MessageToModel(opening)).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	session.CreatedAt = model.CreatedAt
	session.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a session by ID.
func (r *GormSessionRepository) GetByID(ctx context.Context, id string) (*domain.ChatSession, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// FindOpenByCustomer returns the customer's most recent session that is not
// closed.
func (r *GormSessionRepository) FindOpenByCustomer(ctx context.Context, customerID string) (*domain.ChatSession, error) {
	var model domain.ChatSessionModel
	result := r.db.WithContext(ctx).
		Where("customer_id = ? AND status <> ?", customerID, domain.SessionClosed).
		Order("created_at DESC").
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Assign sets the agent and moves the session to in_progress. A previous
// assignment is overwritten.
func (r *GormSessionRepository) Assign(ctx context.Context, id, agentID string, note *domain.Message) (*domain.ChatSession, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"agent_id": agentID,
		"status":   string(domain.SessionInProgress),
	}, note)
}

// Close moves the session to its terminal state.
func (r *GormSessionRepository) Close(ctx context.Context, id string, note *domain.Message) (*domain.ChatSession, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status": string(domain.SessionClosed),
	}, note)
}

// transition applies updates to a non-closed session and appends note in the
// same transaction. ErrSessionClosed is returned when the row is terminal.
func (r *GormSessionRepository) transition(ctx context.Context, id string, updates map[string]interface{}, note *domain.Message) (*domain.ChatSession, error) {
	var updated *domain.ChatSession

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates["updated_at"] = time.Now().UTC()

		result := tx.Model(&domain.ChatSessionModel{}).
			Where("id = ? AND status <> ?", id, domain.SessionClosed).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			if _, err := r.get(tx, id); err != nil {
				return err
			}
			return ErrSessionClosed
		}

		if note != nil {
			if err := tx.Create(domain.MessageToModel(note)).Error; err != nil {
				return err
			}
		}

		s, err := r.get(tx, id)
		if err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListForIdentity lists a customer's own sessions, or the sessions assigned
// to an agent, newest first.
func (r *GormSessionRepository) ListForIdentity(ctx context.Context, identity domain.Identity, offset, limit int) ([]domain.ChatSession, int64, error) {
	column := "customer_id"
	if identity.IsAgent() {
		column = "agent_id"
	}
	query := r.db.WithContext(ctx).
		Model(&domain.ChatSessionModel{}).
		Where(column+" = ?", identity.ID).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []domain.ChatSessionModel
	if err := query.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	sessions := make([]domain.ChatSession, 0, len(models))
	for i := range models {
		sessions = append(sessions, *models[i].ToDomain())
	}
	return sessions, total, nil
}

func (r *GormSessionRepository) get(db *gorm.DB, id string) (*domain.ChatSession, error) {
	var model domain.ChatSessionModel
	result := db.First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}
