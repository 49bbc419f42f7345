package repository

import (
	"context"

	"github.com/mrnpal/murojaah/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据持久房间 ID 查找房间。
	// 如果房间不存在，返回 repository.ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByRoomCode 根据对外房间码查找房间。
	// 如果房间不存在，返回 repository.ErrRoomNotFound。
	FindByRoomCode(ctx context.Context, code string) (*domain.Room, error)

	// Save 保存房间信息。脚本列在创建后视为不可变，Save 不用于改写它。
	Save(ctx context.Context, room *domain.Room) error

	// Delete 删除指定 ID 的房间。房间不存在时返回 repository.ErrRoomNotFound。
	// 关联的 CorrectionLog 记录保留不动。
	Delete(ctx context.Context, id uint) error

	// FindByCreator 返回某个 admin 创建的全部房间，按创建时间倒序。
	FindByCreator(ctx context.Context, creatorID uint) ([]domain.Room, error)

	// FindAllActive 返回所有开放加入的房间，带创建者用户名，按创建时间倒序。
	FindAllActive(ctx context.Context) ([]domain.RoomListing, error)

	// IsRoomCodeExists 检查房间码是否已存在。
	IsRoomCodeExists(ctx context.Context, code string) (bool, error)
}
