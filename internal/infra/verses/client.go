// Package verses 实现对外部经文数据源 (alquran.cloud 风格 API) 的访问。
// 一个章节需要两次子请求：原文 edition 和拉丁转写 edition，按节序号对齐。
// 任何一次子请求失败、或两个 edition 的节数不一致，都会让整个获取失败，
// 房间创建因此不会持久化半成品脚本。
package verses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/domain"
)

// ErrUpstreamFetch 表示经文数据源不可用或返回了不一致的数据。
var ErrUpstreamFetch = errors.New("verses: upstream fetch failed or returned inconsistent data")

// 两个 edition 标识：原文和拉丁转写。
const (
	editionArabic = "quran-uthmani"
	editionLatin  = "en.transliteration"
)

// Client 是经文数据源的 HTTP 客户端。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建经文数据源客户端。timeout 约束单次子请求。
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		panic("base URL cannot be empty for verses.Client")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// surahResponse 映射上游 API 的响应结构 (只取需要的字段)。
type surahResponse struct {
	Code int `json:"code"`
	Data struct {
		EnglishName   string `json:"englishName"`
		NumberOfAyahs int    `json:"numberOfAyahs"`
		Ayahs         []struct {
			NumberInSurah int    `json:"numberInSurah"`
			Text          string `json:"text"`
		} `json:"ayahs"`
	} `json:"data"`
}

// FetchSurah 获取一个章节的完整脚本：原文 + 拉丁转写，按节序号对齐。
// 返回章节英文名和 []domain.Verse。任何不一致都返回包装了 ErrUpstreamFetch 的错误。
func (c *Client) FetchSurah(ctx context.Context, surahID int) (string, []domain.Verse, error) {
	logCtx := logrus.WithField("surah_id", surahID)

	arabic, err := c.fetchEdition(ctx, surahID, editionArabic)
	if err != nil {
		logCtx.WithError(err).Error("Failed to fetch arabic edition")
		return "", nil, fmt.Errorf("%w: arabic edition: %v", ErrUpstreamFetch, err)
	}
	latin, err := c.fetchEdition(ctx, surahID, editionLatin)
	if err != nil {
		logCtx.WithError(err).Error("Failed to fetch transliteration edition")
		return "", nil, fmt.Errorf("%w: transliteration edition: %v", ErrUpstreamFetch, err)
	}

	// 两个 edition 必须逐节对齐
	if len(arabic.Data.Ayahs) != len(latin.Data.Ayahs) {
		logCtx.Warnf("Edition verse counts mismatch: arabic=%d latin=%d",
			len(arabic.Data.Ayahs), len(latin.Data.Ayahs))
		return "", nil, fmt.Errorf("%w: editions returned %d vs %d verses",
			ErrUpstreamFetch, len(arabic.Data.Ayahs), len(latin.Data.Ayahs))
	}
	if len(arabic.Data.Ayahs) == 0 {
		return "", nil, fmt.Errorf("%w: surah %d has no verses", ErrUpstreamFetch, surahID)
	}

	script := make([]domain.Verse, 0, len(arabic.Data.Ayahs))
	for i, ayah := range arabic.Data.Ayahs {
		if ayah.NumberInSurah != latin.Data.Ayahs[i].NumberInSurah {
			return "", nil, fmt.Errorf("%w: verse number misalignment at position %d", ErrUpstreamFetch, i)
		}
		script = append(script, domain.Verse{
			Number:    ayah.NumberInSurah,
			TextArab:  ayah.Text,
			TextLatin: latin.Data.Ayahs[i].Text,
		})
	}

	logCtx.WithField("verse_count", len(script)).Info("Surah script fetched")
	return arabic.Data.EnglishName, script, nil
}

// fetchEdition 执行一次子请求并解析响应。
func (c *Client) fetchEdition(ctx context.Context, surahID int, edition string) (*surahResponse, error) {
	url := fmt.Sprintf("%s/surah/%d/%s", c.baseURL, surahID, edition)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var parsed surahResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", url, err)
	}
	if parsed.Code != http.StatusOK {
		return nil, fmt.Errorf("upstream code %d from %s", parsed.Code, url)
	}
	return &parsed, nil
}
