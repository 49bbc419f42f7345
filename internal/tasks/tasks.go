package tasks

import (
	"encoding/json"

	"github.com/mrnpal/murojaah/internal/domain"
)

// 任务类型常量
const (
	TypeCorrectionLogPersistence = "correction_log:persist" // 判定日志持久化任务
)

// CorrectionLogPayload 定义判定日志持久化任务的数据结构。
type CorrectionLogPayload struct {
	Log domain.CorrectionLog
}

// NewCorrectionLogTask 序列化一条判定日志为任务 payload。
func NewCorrectionLogTask(log domain.CorrectionLog) ([]byte, error) {
	payload := CorrectionLogPayload{Log: log}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}
