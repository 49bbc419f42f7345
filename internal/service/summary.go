package service

import (
	"context"
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/domain"
	"github.com/mrnpal/murojaah/internal/repository"
)

// RoomSummary 是一个用户在一个房间里的 setoran 成绩单。
type RoomSummary struct {
	RoomName    string                 `json:"roomName"`
	TargetSurah string                 `json:"targetSurah"`
	Correct     int64                  `json:"correct"`
	Incorrect   int64                  `json:"incorrect"`
	Total       int64                  `json:"total"`
	Score       int                    `json:"score"` // 0-100
	Message     string                 `json:"message,omitempty"`
	Logs        []domain.CorrectionLog `json:"logs,omitempty"`
}

// SummaryService 聚合判定日志生成成绩单。
type SummaryService struct {
	roomRepo repository.RoomRepository
	logRepo  repository.CorrectionLogRepository
}

// NewSummaryService 创建 SummaryService 实例。
func NewSummaryService(roomRepo repository.RoomRepository, logRepo repository.CorrectionLogRepository) *SummaryService {
	if roomRepo == nil || logRepo == nil {
		panic("all repositories must be non-nil for SummaryService")
	}
	return &SummaryService{roomRepo: roomRepo, logRepo: logRepo}
}

// GetRoomSummary 返回 userID 在指定房间码下的成绩单。
// 没有任何日志时返回全零的成绩单和提示消息，而不是错误。
func (s *SummaryService) GetRoomSummary(ctx context.Context, roomCode string, userID uint) (*RoomSummary, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": roomCode, "user_id": userID})

	room, err := s.roomRepo.FindByRoomCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("GetRoomSummary: Room not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("GetRoomSummary: Repository error")
		return nil, ErrInternalServer
	}

	// 正误统计在数据库侧聚合，明细列表单独拉取
	correct, incorrect, err := s.logRepo.CountByRoomAndUser(ctx, room.ID, userID)
	if err != nil {
		logCtx.WithError(err).Error("GetRoomSummary: Failed to count correction logs")
		return nil, ErrInternalServer
	}

	summary := &RoomSummary{
		RoomName:    room.Name,
		TargetSurah: room.TargetSurah,
		Correct:     correct,
		Incorrect:   incorrect,
		Total:       correct + incorrect,
	}
	if summary.Total == 0 {
		summary.Message = "Belum ada data setoran untuk room ini."
		return summary, nil
	}

	logs, err := s.logRepo.FindByRoomAndUser(ctx, room.ID, userID)
	if err != nil {
		logCtx.WithError(err).Error("GetRoomSummary: Failed to load correction logs")
		return nil, ErrInternalServer
	}

	summary.Score = int(math.Round(float64(summary.Correct) / float64(summary.Total) * 100))
	summary.Logs = logs

	logCtx.WithField("score", summary.Score).Info("Room summary generated")
	return summary, nil
}
