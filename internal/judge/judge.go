// Package judge 定义背诵判定服务的接口。
//
// Judge 把一次背诵尝试交给外部生成式 AI 模型判定。上下文里必须带上完整的
// 章节脚本，而不仅是目标节：模型需要对照相邻各节才能识别 SKIP_AYAT
// (santri 跳节往下背) 这类错误。实现必须是并发安全的。
package judge

import (
	"context"

	"github.com/mrnpal/murojaah/internal/domain"
)

// Request 描述一次判定请求。
type Request struct {
	// Script 是房间的完整经文脚本，按节序排列。
	Script []domain.Verse
	// TargetText 是期望被背诵的那一节的拉丁转写。
	TargetText string
	// CandidateText 是语音识别出的候选文本。
	CandidateText string
	// ExpectedAyatNumber 是期望节的 1-based 序号。
	ExpectedAyatNumber int
}

// Judge 是外部判定服务的接口。
// Evaluate 要么返回一个完整的 Verdict，要么返回错误；超时、传输失败和
// 响应解析失败都以错误形式上抛，由调用方统一转换为 AI_ERROR 兜底裁决。
type Judge interface {
	Evaluate(ctx context.Context, req Request) (domain.Verdict, error)
}
