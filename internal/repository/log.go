package repository

import (
	"context"

	"github.com/mrnpal/murojaah/internal/domain"
)

// CorrectionLogRepository 定义了背诵判定日志的存储和查询。
// 日志是 append-only 的：只有 Save 和读取，没有更新或删除。
type CorrectionLogRepository interface {
	// Save 追加一条判定日志。
	Save(ctx context.Context, log *domain.CorrectionLog) error

	// FindByRoomAndUser 返回某房间内某用户的全部判定日志，按创建时间正序。
	FindByRoomAndUser(ctx context.Context, roomID uint, userID uint) ([]domain.CorrectionLog, error)

	// CountByRoomAndUser 按正误分别统计某房间内某用户的日志条数。
	CountByRoomAndUser(ctx context.Context, roomID uint, userID uint) (correct int64, incorrect int64, err error)
}
