package repository

import (
	"context"
	"time"
)

// StateRepository 定义了房间易失会话状态的操作，由 Redis 实现。
// 游标和揭示标志是简单的 last-write-wins 赋值：只有 admin 连接会写它们，
// 不需要 read-modify-write 原子性。状态随房间删除一起清理，
// 丢失时可安全地退回零值 (游标 0，未揭示)。
type StateRepository interface {
	// === 会话游标 (当前 ayat 索引, 0-based, 可以等于脚本长度表示已完成) ===

	// GetCursor 获取房间当前的 ayat 游标。key 不存在时返回 0。
	GetCursor(ctx context.Context, roomID uint) (int, error)

	// SetCursor 设置房间的 ayat 游标。
	SetCursor(ctx context.Context, roomID uint, index int) error

	// === 揭示标志 (santri 端是否允许显示经文) ===

	// GetReveal 获取揭示标志。key 不存在时返回 false。
	GetReveal(ctx context.Context, roomID uint) (bool, error)

	// SetReveal 设置揭示标志。
	SetReveal(ctx context.Context, roomID uint, revealed bool) error

	// CleanupRoomState 清理房间相关的 Redis key，在房间删除时调用。
	CleanupRoomState(ctx context.Context, roomID uint) error

	// === Rate Limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 表示超限。
	CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error)
}
