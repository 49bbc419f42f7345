package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Verse 表示经文脚本中的一节 (ayat)。
// Number 是 1-based 的节序号，TextArab 是原文，TextLatin 是供 AI 比对的拉丁转写。
type Verse struct {
	Number    int    `json:"number"`
	TextArab  string `json:"textArab"`
	TextLatin string `json:"textLatin"`
}

// Room 表示一次 setoran (背诵抽查) 会话房间。
// 经文脚本在创建时从外部数据源获取一次，之后不可变；
// 会话游标 (当前 ayat 索引) 与揭示标志保存在 Redis 中 (见 repository.StateRepository)。
type Room struct {
	ID          uint      `gorm:"primaryKey" json:"id"`                                   // 内部持久标识符，日志通过它关联房间
	RoomCode    string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"roomCode"`  // 对外可见的房间码，创建后不可变
	Name        string    `gorm:"type:varchar(191);not null" json:"name"`
	CreatorID   uint      `gorm:"index;not null" json:"creatorId"`                        // 创建该房间的 admin 用户 ID
	TargetSurah string    `gorm:"type:varchar(64);not null" json:"targetSurah"`
	IsActive    bool      `gorm:"not null;default:true" json:"isActive"`                  // true = 房间开放加入
	Script      string    `gorm:"type:text;not null" json:"-"`                            // JSON 序列化的 []Verse
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"-"`
}

// ParseScript 将 Script 字段 (JSON 字符串) 解析为 []Verse。
func (r *Room) ParseScript() ([]Verse, error) {
	if r.Script == "" || r.Script == "null" {
		return nil, fmt.Errorf("room %d has empty script", r.ID)
	}
	var verses []Verse
	if err := json.Unmarshal([]byte(r.Script), &verses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room script: %w", err)
	}
	return verses, nil
}

// SetScript 将 []Verse 序列化为 JSON 字符串并设置到 Script 字段。
// 只在房间创建时调用一次。
func (r *Room) SetScript(verses []Verse) error {
	bytes, err := json.Marshal(verses)
	if err != nil {
		return fmt.Errorf("failed to marshal room script: %w", err)
	}
	r.Script = string(bytes)
	return nil
}

// RoomListing 是 list-active-rooms 查询的投影结果，带已解析的创建者用户名。
type RoomListing struct {
	Room
	CreatorName string `json:"creatorName"`
}
