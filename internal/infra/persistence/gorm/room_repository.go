package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/mrnpal/murojaah/internal/domain"
	"github.com/mrnpal/murojaah/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据持久房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

// FindByRoomCode 实现根据房间码查找房间
func (r *GormRoomRepository) FindByRoomCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("room_code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &room, nil
}

// Save 实现保存房间信息（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Save(room).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d, room_code: %s): %w", room.ID, room.RoomCode, err)
	}
	return nil
}

// Delete 实现按 ID 删除房间。日志记录通过持久 ID 关联，删除房间时保留。
func (r *GormRoomRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.Room{}, id)
	if result.Error != nil {
		return fmt.Errorf("gorm: delete room %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

// FindByCreator 实现查询某 admin 创建的房间列表，最新的在前
func (r *GormRoomRepository) FindByCreator(ctx context.Context, creatorID uint) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find rooms by creator %d: %w", creatorID, err)
	}
	return rooms, nil
}

// FindAllActive 实现查询所有开放房间，JOIN users 解析创建者用户名
func (r *GormRoomRepository) FindAllActive(ctx context.Context) ([]domain.RoomListing, error) {
	var listings []domain.RoomListing
	err := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Select("rooms.*, users.username AS creator_name").
		Joins("JOIN users ON users.id = rooms.creator_id").
		Where("rooms.is_active = ?", true).
		Order("rooms.created_at DESC").
		Scan(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find active rooms: %w", err)
	}
	return listings, nil
}

// IsRoomCodeExists 实现检查房间码是否存在
func (r *GormRoomRepository) IsRoomCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("room_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}
