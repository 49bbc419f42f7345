package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrnpal/murojaah/internal/domain"
)

// GormCorrectionLogRepository 是 CorrectionLogRepository 接口的 GORM 实现
type GormCorrectionLogRepository struct {
	db *gorm.DB
}

// NewGormCorrectionLogRepository 创建 GormCorrectionLogRepository 实例
func NewGormCorrectionLogRepository(db *gorm.DB) *GormCorrectionLogRepository {
	if db == nil {
		panic("database connection cannot be nil for GormCorrectionLogRepository")
	}
	return &GormCorrectionLogRepository{db: db}
}

// Save 实现追加一条判定日志。日志是 append-only 的，这里总是 Create 而不是 Save，
// 防止带 ID 的对象被意外用于更新。
func (r *GormCorrectionLogRepository) Save(ctx context.Context, log *domain.CorrectionLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("gorm: create correction log (room: %d, user: %d): %w", log.RoomID, log.UserID, err)
	}
	return nil
}

// FindByRoomAndUser 实现查询某房间内某用户的全部判定日志，正序
func (r *GormCorrectionLogRepository) FindByRoomAndUser(ctx context.Context, roomID uint, userID uint) ([]domain.CorrectionLog, error) {
	var logs []domain.CorrectionLog
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find correction logs (room: %d, user: %d): %w", roomID, userID, err)
	}
	return logs, nil
}

// CountByRoomAndUser 实现按正误统计日志条数
func (r *GormCorrectionLogRepository) CountByRoomAndUser(ctx context.Context, roomID uint, userID uint) (int64, int64, error) {
	var correct, incorrect int64
	base := r.db.WithContext(ctx).Model(&domain.CorrectionLog{}).
		Where("room_id = ? AND user_id = ?", roomID, userID)

	if err := base.Session(&gorm.Session{}).Where("is_correct = ?", true).Count(&correct).Error; err != nil {
		return 0, 0, fmt.Errorf("gorm: count correct logs (room: %d, user: %d): %w", roomID, userID, err)
	}
	if err := base.Session(&gorm.Session{}).Where("is_correct = ?", false).Count(&incorrect).Error; err != nil {
		return 0, 0, fmt.Errorf("gorm: count incorrect logs (room: %d, user: %d): %w", roomID, userID, err)
	}
	return correct, incorrect, nil
}
