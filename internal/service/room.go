package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/domain"
	"github.com/mrnpal/murojaah/internal/infra/verses"
	"github.com/mrnpal/murojaah/internal/repository"
)

// VerseProvider 是外部经文数据源的抽象，由 infra/verses 实现。
type VerseProvider interface {
	// FetchSurah 返回章节英文名和完整的脚本。
	FetchSurah(ctx context.Context, surahID int) (string, []domain.Verse, error)
}

// RoomService 负责房间管理与会话状态 (游标/揭示标志) 相关的业务逻辑。
type RoomService struct {
	roomRepo      repository.RoomRepository
	stateRepo     repository.StateRepository
	verseProvider VerseProvider
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, stateRepo repository.StateRepository, verseProvider VerseProvider) *RoomService {
	if roomRepo == nil || stateRepo == nil || verseProvider == nil {
		panic("all dependencies must be non-nil for RoomService")
	}
	return &RoomService{
		roomRepo:      roomRepo,
		stateRepo:     stateRepo,
		verseProvider: verseProvider,
	}
}

// CreateRoom 创建一个新房间：同步拉取经文脚本，生成唯一房间码，持久化。
// 脚本拉取失败时整个操作失败，不会持久化半成品房间。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, name string, surahID int) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "surah_id": surahID})

	// 1. 拉取经文脚本 (两次子请求在 provider 内部完成并对齐)
	surahName, script, err := s.verseProvider.FetchSurah(ctx, surahID)
	if err != nil {
		if errors.Is(err, verses.ErrUpstreamFetch) {
			logCtx.WithError(err).Warn("Verse source unavailable or inconsistent, room not created")
			return nil, ErrUpstreamFetch
		}
		logCtx.WithError(err).Error("Unexpected error fetching surah script")
		return nil, ErrInternalServer
	}

	// 2. 生成唯一的房间码
	roomCode, err := s.generateUniqueRoomCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique room code")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_code", roomCode)

	if name == "" {
		name = "Setoran Room"
	}

	// 3. 创建并持久化房间对象
	room := &domain.Room{
		RoomCode:    roomCode,
		Name:        name,
		CreatorID:   creatorID,
		TargetSurah: surahName,
		IsActive:    true,
	}
	if err := room.SetScript(script); err != nil {
		logCtx.WithError(err).Error("Failed to serialize room script")
		return nil, ErrInternalServer
	}

	if err := s.roomRepo.Save(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 房间码冲突理论上已被唯一性检查挡住
			logCtx.WithError(err).Error("Failed to save new room due to duplicate entry (room code conflict?)")
			return nil, ErrInternalServer
		}
		logCtx.WithError(err).Error("Failed to save new room to database")
		return nil, ErrInternalServer
	}

	logCtx.WithFields(logrus.Fields{"room_id": room.ID, "verse_count": len(script)}).Info("Room created successfully")
	return room, nil
}

// FindRoomByCode 根据房间码查找房间，供 WebSocket 加入流程使用。
func (s *RoomService) FindRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	logCtx := logrus.WithField("room_code", code)
	room, err := s.roomRepo.FindByRoomCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("FindRoomByCode: Room not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("FindRoomByCode: Repository error")
		return nil, ErrInternalServer
	}
	if room == nil { // 防御
		logCtx.Warn("FindRoomByCode: Repository returned nil room without error")
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// ListMyRooms 返回某 admin 创建的全部房间，最新的在前。
func (s *RoomService) ListMyRooms(ctx context.Context, creatorID uint) ([]domain.Room, error) {
	rooms, err := s.roomRepo.FindByCreator(ctx, creatorID)
	if err != nil {
		logrus.WithError(err).WithField("creator_id", creatorID).Error("Failed to list rooms by creator")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// ListActiveRooms 返回所有开放加入的房间，带创建者用户名。
func (s *RoomService) ListActiveRooms(ctx context.Context) ([]domain.RoomListing, error) {
	listings, err := s.roomRepo.FindAllActive(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list active rooms")
		return nil, ErrInternalServer
	}
	return listings, nil
}

// DeleteRoom 删除指定房间。只有房间的创建者可以删除；
// 已有的判定日志保留为孤儿记录 (持久 ID 不会被复用)。
func (s *RoomService) DeleteRoom(ctx context.Context, roomID uint, requesterID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "requester_id": requesterID})

	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("DeleteRoom: Room not found")
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("DeleteRoom: Repository error")
		return ErrInternalServer
	}
	if room.CreatorID != requesterID {
		logCtx.Warn("DeleteRoom: Requester is not the room owner")
		return ErrForbidden
	}

	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("DeleteRoom: Failed to delete room")
		return ErrInternalServer
	}

	// 清理 Redis 会话状态；失败只记录，不影响删除结果
	if err := s.stateRepo.CleanupRoomState(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("DeleteRoom: Failed to cleanup session state")
	}

	logCtx.Info("Room deleted successfully")
	return nil
}

// SessionState 返回房间当前的会话状态 (游标 + 揭示标志)。
// Redis 读失败时退回零值，加入流程不应因状态缺失而失败。
func (s *RoomService) SessionState(ctx context.Context, roomID uint) (int, bool) {
	logCtx := logrus.WithField("room_id", roomID)
	cursor, err := s.stateRepo.GetCursor(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to read session cursor, falling back to 0")
		cursor = 0
	}
	revealed, err := s.stateRepo.GetReveal(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to read reveal flag, falling back to false")
		revealed = false
	}
	return cursor, revealed
}

// Navigate 设置房间游标。newIndex 必须落在 [0, 脚本长度] 内
// (等于长度表示全部背完)；越界的值被拒绝而不是被钳制。
func (s *RoomService) Navigate(ctx context.Context, room *domain.Room, newIndex int) error {
	script, err := room.ParseScript()
	if err != nil {
		logrus.WithError(err).WithField("room_id", room.ID).Error("Navigate: Failed to parse room script")
		return ErrInternalServer
	}
	if newIndex < 0 || newIndex > len(script) {
		return fmt.Errorf("ayat index %d out of range [0, %d]", newIndex, len(script))
	}
	if err := s.stateRepo.SetCursor(ctx, room.ID, newIndex); err != nil {
		logrus.WithError(err).WithField("room_id", room.ID).Error("Navigate: Failed to persist cursor")
		return ErrInternalServer
	}
	return nil
}

// SetReveal 设置房间的揭示标志。
func (s *RoomService) SetReveal(ctx context.Context, roomID uint, revealed bool) error {
	if err := s.stateRepo.SetReveal(ctx, roomID, revealed); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("SetReveal: Failed to persist reveal flag")
		return ErrInternalServer
	}
	return nil
}

// --- 私有辅助函数 ---

// generateUniqueRoomCode 生成 "ROOM-XXXXX" 形式的唯一房间码。
func (s *RoomService) generateUniqueRoomCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const codeLength = 5
	const maxAttempts = 10

	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := "ROOM-" + string(b)

		exists, err := s.roomRepo.IsRoomCodeExists(ctx, code)
		if err != nil {
			logrus.WithError(err).WithField("room_code", code).Error("Database error checking room code uniqueness")
			return "", fmt.Errorf("database error checking room code: %w", err)
		}
		if !exists {
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Generated room code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", maxAttempts)
}
