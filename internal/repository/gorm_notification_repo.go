package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-support-chat/internal/domain"
)

// GormNotificationRepository implements NotificationRepository using GORM.
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository creates a new GORM-based notification repository.
func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// Create stores a notification.
func (r *GormNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	model := domain.NotificationToModel(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	n.CreatedAt = model.CreatedAt
	return nil
}

// List returns a recipient's notifications, newest first.
func (r *GormNotificationRepository) List(ctx context.Context, recipientID string, unreadOnly bool, offset, limit int) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.NotificationModel{}).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []domain.NotificationModel
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	items := make([]domain.Notification, 0, len(models))
	for i := range models {
		items = append(items, models[i].ToDomain())
	}
	return items, total, nil
}

// CountUnread counts unread notifications for a recipient.
func (r *GormNotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.NotificationModel{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification read. Marking an already read
// notification is a no-op; a notification owned by someone else is not found.
func (r *GormNotificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&domain.NotificationModel{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var model domain.NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ? AND recipient_id = ?", id, recipientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// MarkAllRead marks every unread notification of a recipient read and
// returns how many changed.
func (r *GormNotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&domain.NotificationModel{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	return result.RowsAffected, result.Error
}
