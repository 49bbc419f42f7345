package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Verdict 的 errorType 取值。AI 产生前四种；AI_ERROR 是判定服务不可用时
// 服务端本地生成的兜底类型；AdminOverride 仅出现在 admin_force_repeat 的合成裁决中。
const (
	ErrorTypeNone          = "NONE"
	ErrorTypeWrongWord     = "WRONG_WORD"
	ErrorTypeSkipAyat      = "SKIP_AYAT"
	ErrorTypeRandom        = "RANDOM"
	ErrorTypeAIError       = "AI_ERROR"
	ErrorTypeServerError   = "SERVER_ERROR"
	ErrorTypeAdminOverride = "ADMIN_OVERRIDE"
)

// Verdict 是针对一次背诵尝试的结构化判定结果。
// AdminMessage 面向 ustadz (详细分析)，SantriGuidance 面向 santri (简短引导)。
type Verdict struct {
	IsCorrect          bool   `json:"isCorrect"`
	DetectedAyatNumber int    `json:"detectedAyatNumber,omitempty"` // AI 认为实际被背诵的 ayat (1-based)
	ErrorType          string `json:"errorType"`
	AdminMessage       string `json:"adminMessage"`
	SantriGuidance     string `json:"santriGuidance"`
}

// CorrectionLog 是一条持久的背诵判定记录，写入后不可变 (append-only)。
// 房间被删除后已有日志保留 (孤儿记录)，RoomID 不会被复用。
type CorrectionLog struct {
	ID              uint      `gorm:"primaryKey"`
	RoomID          uint      `gorm:"index;not null"` // 持久房间 ID (不是房间码)
	UserID          uint      `gorm:"index;not null"`
	SurahName       string    `gorm:"type:varchar(64)"`
	AyahNumber      int       `gorm:"not null"`            // 提交时 admin 游标所指 ayat，1-based
	TranscribedText string    `gorm:"type:text;not null"`  // 客户端语音识别出的候选文本
	IsCorrect       bool      `gorm:"not null"`            // 冗余列，方便按房间+用户聚合统计
	Feedback        string    `gorm:"type:text;not null"`  // JSON 序列化的完整 Verdict
	CreatedAt       time.Time `gorm:"autoCreateTime;index"`
}

// ParseFeedback 将 Feedback 字段解析为 Verdict。
func (l *CorrectionLog) ParseFeedback() (Verdict, error) {
	var v Verdict
	if l.Feedback == "" {
		return v, fmt.Errorf("correction log %d has empty feedback", l.ID)
	}
	if err := json.Unmarshal([]byte(l.Feedback), &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal correction feedback: %w", err)
	}
	return v, nil
}

// SetFeedback 将 Verdict 序列化并设置到 Feedback 字段，同时同步 IsCorrect 冗余列。
func (l *CorrectionLog) SetFeedback(v Verdict) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal correction feedback: %w", err)
	}
	l.Feedback = string(bytes)
	l.IsCorrect = v.IsCorrect
	return nil
}
