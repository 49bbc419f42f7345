// Package domain 定义了应用程序的核心数据结构 (数据库模型)。
package domain

import "time"

// 用户角色常量。admin 创建并主持房间 (ustadz)，user 是背诵的 santri。
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User 表示应用程序中的用户。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	Password  string    `gorm:"type:text;not null" json:"-"` // 存储的是哈希后的密码，不能为空
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_email" json:"email"`
	Role      string    `gorm:"type:varchar(16);not null;default:'user'" json:"role"` // "admin" 或 "user"
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

// IsAdmin 判断用户是否为 admin 角色。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
