// Package gemini 实现 judge.Judge 接口，调用 Google generativelanguage API。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/domain"
	"github.com/mrnpal/murojaah/internal/judge"
)

const defaultModel = "gemini-2.5-flash"

// Client 调用 generativelanguage HTTP API 判定背诵。
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient 创建 Gemini 判定客户端。timeout 是单次判定调用的硬上限，
// 超时与传输错误同样走调用方的 AI_ERROR 兜底路径。
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if apiKey == "" {
		panic("API key cannot be empty for gemini.Client")
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// --- generativelanguage API 的请求/响应结构 (只取需要的字段) ---

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Evaluate 实现 judge.Judge。每次尝试恰好调用模型一次，不重试。
func (c *Client) Evaluate(ctx context.Context, req judge.Request) (domain.Verdict, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"component":     "gemini",
		"expected_ayat": req.ExpectedAyatNumber,
	})

	prompt := buildPrompt(req)
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Verdict{}, fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Verdict{}, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return domain.Verdict{}, fmt.Errorf("gemini: empty candidates in response")
	}

	raw := parsed.Candidates[0].Content.Parts[0].Text
	verdict, err := parseVerdict(raw)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to parse verdict from model output")
		return domain.Verdict{}, err
	}

	logCtx.WithFields(logrus.Fields{
		"is_correct": verdict.IsCorrect,
		"error_type": verdict.ErrorType,
	}).Debug("Verdict received from model")
	return verdict, nil
}

// parseVerdict 剥掉模型习惯性包裹的 ``` 代码围栏后解析 JSON。
func parseVerdict(raw string) (domain.Verdict, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var verdict domain.Verdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return domain.Verdict{}, fmt.Errorf("gemini: unmarshal verdict: %w", err)
	}
	if verdict.ErrorType == "" {
		return domain.Verdict{}, fmt.Errorf("gemini: verdict missing errorType")
	}
	return verdict, nil
}

// buildPrompt 组装判定 prompt：完整章节脚本 + 期望节 + santri 的转录文本。
func buildPrompt(req judge.Request) string {
	var sb strings.Builder
	sb.WriteString("Anda adalah Asisten Ustadz (Hafiz AI) yang sangat teliti. ")
	sb.WriteString("Ustadz sedang menyimak hafalan santri.\n\n")

	sb.WriteString("KONTEKS:\n1. Surah Lengkap:\n")
	for _, verse := range req.Script {
		fmt.Fprintf(&sb, "Ayat %d: %q\n", verse.Number, verse.TextLatin)
	}
	fmt.Fprintf(&sb, "2. Ayat yang Diharapkan (Posisi Ustadz): Ayat %d (%q)\n",
		req.ExpectedAyatNumber, req.TargetText)
	fmt.Fprintf(&sb, "3. Bacaan Santri (Transkrip): %q\n\n", req.CandidateText)

	sb.WriteString("TUGAS ANDA:\nAnalisa bacaan santri dan jawab HANYA dengan JSON murni ")
	sb.WriteString("berbentuk {\"isCorrect\": bool, \"detectedAyatNumber\": int, ")
	sb.WriteString("\"errorType\": \"NONE\"|\"WRONG_WORD\"|\"SKIP_AYAT\"|\"RANDOM\", ")
	sb.WriteString("\"adminMessage\": string, \"santriGuidance\": string}.\n\n")

	sb.WriteString("ATURAN ANALISA:\n")
	fmt.Fprintf(&sb, "1. Jika bacaan sesuai Ayat %d, 'isCorrect' = true dan 'errorType' = \"NONE\".\n",
		req.ExpectedAyatNumber)
	fmt.Fprintf(&sb, "2. Jika santri salah ucap/salah harakat di Ayat %d: \"WRONG_WORD\".\n",
		req.ExpectedAyatNumber)
	fmt.Fprintf(&sb, "3. Jika santri membaca ayat lain (misal Ayat %d): \"SKIP_AYAT\", "+
		"isi 'detectedAyatNumber' dengan ayat yang sebenarnya dibaca.\n", req.ExpectedAyatNumber+1)
	sb.WriteString("4. Jika bacaan tidak berhubungan dengan surah: \"RANDOM\".\n")
	sb.WriteString("5. 'adminMessage' detail untuk Ustadz; 'santriGuidance' singkat untuk Santri.\n")

	return sb.String()
}
