package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/repository"
	"github.com/mrnpal/murojaah/internal/tasks"
)

// CorrectionLogHandler 处理判定日志持久化任务。
type CorrectionLogHandler struct {
	logRepo repository.CorrectionLogRepository
}

// NewCorrectionLogHandler 创建 Handler 实例
func NewCorrectionLogHandler(logRepo repository.CorrectionLogRepository) *CorrectionLogHandler {
	if logRepo == nil {
		panic("CorrectionLogRepository cannot be nil for CorrectionLogHandler")
	}
	return &CorrectionLogHandler{logRepo: logRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
// payload 损坏时跳过重试；数据库写失败时返回错误交给 asynq 重试。
func (h *CorrectionLogHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retryCount, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"retry":     retryCount,
		"max_retry": maxRetry,
	})

	var payload tasks.CorrectionLogPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal correction log payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	entry := payload.Log
	if err := h.logRepo.Save(ctx, &entry); err != nil {
		logCtx.WithError(err).WithFields(logrus.Fields{
			"room_id": entry.RoomID,
			"user_id": entry.UserID,
		}).Error("Failed to persist correction log entry")
		return fmt.Errorf("failed to save correction log (room %d, user %d): %w", entry.RoomID, entry.UserID, err)
	}

	logCtx.WithFields(logrus.Fields{
		"room_id":     entry.RoomID,
		"user_id":     entry.UserID,
		"ayah_number": entry.AyahNumber,
	}).Info("Correction log entry persisted")
	return nil
}
