package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/domain"
	"github.com/mrnpal/murojaah/internal/judge"
	"github.com/mrnpal/murojaah/internal/repository"
	"github.com/mrnpal/murojaah/internal/tasks"
)

// TaskEnqueuer 是 asynq.Client 满足的最小接口，便于测试替换。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CorrectionRequest 是一次背诵尝试的入参。
type CorrectionRequest struct {
	RoomCode          string
	UserID            uint
	CandidateText     string
	TargetVerseText   string // 客户端随请求携带的目标节转写；为空时从脚本解析
	ExpectedAyatIndex int    // 提交时 admin 游标所指的 ayat 索引，0-based
}

// CorrectionService 是背诵判定的编排器。
//
// 对每次尝试，它保证恰好产生一个裁决：AI 正常时是真实裁决，房间缺失时是
// SERVER_ERROR 兜底，判定服务故障/超时/输出不可解析时是 AI_ERROR 兜底。
// 日志持久化通过 asynq 异步完成，失败只影响运维可见性，不影响裁决送达。
// 同一房间内的尝试按到达顺序串行处理，跨房间互不影响。
type CorrectionService struct {
	roomRepo     repository.RoomRepository
	judge        judge.Judge
	enqueuer     TaskEnqueuer
	judgeTimeout time.Duration

	// 每个房间一个串行化点，保证房间内裁决顺序与请求受理顺序一致
	roomLocksMu sync.Mutex
	roomLocks   map[string]*sync.Mutex
}

// NewCorrectionService 创建 CorrectionService 实例。
func NewCorrectionService(roomRepo repository.RoomRepository, j judge.Judge, enqueuer TaskEnqueuer, judgeTimeout time.Duration) *CorrectionService {
	if roomRepo == nil || j == nil || enqueuer == nil {
		panic("all dependencies must be non-nil for CorrectionService")
	}
	if judgeTimeout <= 0 {
		judgeTimeout = 20 * time.Second
	}
	return &CorrectionService{
		roomRepo:     roomRepo,
		judge:        j,
		enqueuer:     enqueuer,
		judgeTimeout: judgeTimeout,
		roomLocks:    make(map[string]*sync.Mutex),
	}
}

// ProcessAttempt 处理一次背诵尝试。
// 返回的 bool 为 false 表示静默 no-op (空候选文本)，调用方不应广播任何东西；
// 为 true 时返回的 Verdict 恰好广播一次。
func (s *CorrectionService) ProcessAttempt(ctx context.Context, req CorrectionRequest) (domain.Verdict, bool) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_code": req.RoomCode,
		"user_id":   req.UserID,
		"operation": "ProcessAttempt",
	})

	// 1. 空候选文本按约定是客户端已过滤的情况，这里静默忽略，绝不崩溃
	if strings.TrimSpace(req.CandidateText) == "" {
		logCtx.Debug("Empty candidate text, treating attempt as no-op")
		return domain.Verdict{}, false
	}

	// 房间级串行化：锁覆盖判定调用与入队，房间内裁决顺序即受理顺序
	lock := s.lockForRoom(req.RoomCode)
	lock.Lock()
	defer lock.Unlock()

	// 2. 解析房间。找不到房间时产生裁决形状的错误事件而不是协议错误：
	//    前端没有独立的错误通道，带可读消息的可见错误优于静默丢弃。
	room, err := s.roomRepo.FindByRoomCode(ctx, req.RoomCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("Room not found for correction attempt")
		} else {
			logCtx.WithError(err).Error("Repository error resolving room for correction attempt")
		}
		return serverErrorVerdict(), true
	}

	script, err := room.ParseScript()
	if err != nil {
		logCtx.WithError(err).Error("Failed to parse room script for correction attempt")
		return serverErrorVerdict(), true
	}

	targetText := req.TargetVerseText
	if targetText == "" && req.ExpectedAyatIndex >= 0 && req.ExpectedAyatIndex < len(script) {
		targetText = script[req.ExpectedAyatIndex].TextLatin
	}

	// 3. 恰好一次判定调用，带硬超时；失败不重试，直接转 AI_ERROR 兜底
	judgeCtx, cancel := context.WithTimeout(ctx, s.judgeTimeout)
	verdict, err := s.judge.Evaluate(judgeCtx, judge.Request{
		Script:             script,
		TargetText:         targetText,
		CandidateText:      req.CandidateText,
		ExpectedAyatNumber: req.ExpectedAyatIndex + 1,
	})
	cancel()
	if err != nil {
		logCtx.WithError(err).WithField("failure_kind", "judge").Warn("Judge call failed, falling back to AI_ERROR verdict")
		verdict = aiErrorVerdict()
	}

	// 4. 异步持久化日志。入队失败只影响诊断，裁决照常送达。
	//    未登录的尝试 (UserID == 0) 不记日志。
	if req.UserID != 0 {
		s.enqueueLog(ctx, logCtx, room, req, verdict)
	}

	// 5. 裁决交由调用方广播，真实或兜底都恰好一次
	logCtx.WithFields(logrus.Fields{
		"is_correct": verdict.IsCorrect,
		"error_type": verdict.ErrorType,
	}).Info("Correction attempt processed")
	return verdict, true
}

// enqueueLog 构造日志记录并入队持久化任务。
func (s *CorrectionService) enqueueLog(ctx context.Context, logCtx *logrus.Entry, room *domain.Room, req CorrectionRequest, verdict domain.Verdict) {
	entry := domain.CorrectionLog{
		RoomID:          room.ID,
		UserID:          req.UserID,
		SurahName:       room.TargetSurah,
		AyahNumber:      req.ExpectedAyatIndex + 1,
		TranscribedText: req.CandidateText,
	}
	if err := entry.SetFeedback(verdict); err != nil {
		logCtx.WithError(err).WithField("failure_kind", "persistence").Error("Failed to serialize verdict for log entry")
		return
	}

	payload, err := tasks.NewCorrectionLogTask(entry)
	if err != nil {
		logCtx.WithError(err).WithField("failure_kind", "persistence").Error("Failed to build correction log task payload")
		return
	}
	task := asynq.NewTask(tasks.TypeCorrectionLogPersistence, payload)
	if _, err := s.enqueuer.EnqueueContext(ctx, task, asynq.Queue("critical")); err != nil {
		// 与判定失败区分开：failure_kind=persistence
		logCtx.WithError(err).WithField("failure_kind", "persistence").Error("Failed to enqueue correction log persistence task")
		return
	}
	logCtx.WithField("ayah_number", entry.AyahNumber).Debug("Correction log persistence task enqueued")
}

// lockForRoom 返回 (必要时创建) 房间的串行化锁。
func (s *CorrectionService) lockForRoom(roomCode string) *sync.Mutex {
	s.roomLocksMu.Lock()
	defer s.roomLocksMu.Unlock()
	lock, ok := s.roomLocks[roomCode]
	if !ok {
		lock = &sync.Mutex{}
		s.roomLocks[roomCode] = lock
	}
	return lock
}

// serverErrorVerdict 是房间/存储不可用时的兜底裁决。
func serverErrorVerdict() domain.Verdict {
	return domain.Verdict{
		IsCorrect:      false,
		ErrorType:      domain.ErrorTypeServerError,
		AdminMessage:   "Gagal memproses di server: room tidak ditemukan.",
		SantriGuidance: "Error, coba lagi.",
	}
}

// aiErrorVerdict 是判定服务故障/超时时的兜底裁决。
func aiErrorVerdict() domain.Verdict {
	return domain.Verdict{
		IsCorrect:      false,
		ErrorType:      domain.ErrorTypeAIError,
		AdminMessage:   "Maaf, AI sedang gangguan.",
		SantriGuidance: "Gagal memproses.",
	}
}
