package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-support-chat/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create appends a message.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Create(domain.MessageToModel(msg)).Error
}

// ListRecent returns the newest limit messages of a session, ascending.
func (r *GormMessageRepository) ListRecent(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, len(models))
	for i := range models {
		messages[len(models)-1-i] = models[i].ToDomain()
	}
	return messages, nil
}

// ListAfter returns up to limit messages with an ID greater than afterID,
// ascending, and whether more remain. An empty afterID starts at the
// beginning of the session.
func (r *GormMessageRepository) ListAfter(ctx context.Context, sessionID, afterID string, limit int) ([]domain.Message, bool, error) {
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}

	var models []domain.MessageModel
	if err := query.Order("id ASC").Limit(limit + 1).Find(&models).Error; err != nil {
		return nil, false, err
	}

	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].ToDomain())
	}
	return messages, hasMore, nil
}

// ListAll returns the full transcript of a session, ascending.
func (r *GormMessageRepository) ListAll(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var models []domain.MessageModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].ToDomain())
	}
	return messages, nil
}
