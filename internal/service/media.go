package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/repository"
)

// MediaService 为音视频会话签发房间级凭证。
// 凭证是一个签名 JWT，范围限定到单个房间，仅授予持有者本人的
// publish/subscribe 权限；媒体面本身 (SFU) 在别的进程里，这里只发 token。
type MediaService struct {
	roomRepo    repository.RoomRepository
	tokenSecret []byte
	tokenTTL    time.Duration
}

// NewMediaService 创建 MediaService 实例。
func NewMediaService(roomRepo repository.RoomRepository, tokenSecret string, tokenTTL time.Duration) (*MediaService, error) {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for MediaService")
	}
	if tokenSecret == "" {
		return nil, fmt.Errorf("media token secret cannot be empty")
	}
	if tokenTTL <= 0 {
		tokenTTL = 2 * time.Hour
	}
	return &MediaService{
		roomRepo:    roomRepo,
		tokenSecret: []byte(tokenSecret),
		tokenTTL:    tokenTTL,
	}, nil
}

// IssueToken 为 identity 签发加入 roomCode 媒体会话的凭证。
// 房间必须存在，token 对其他房间无效。
func (s *MediaService) IssueToken(ctx context.Context, roomCode string, userID uint, identity string) (string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": roomCode, "user_id": userID})

	room, err := s.roomRepo.FindByRoomCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("IssueToken: Room not found")
			return "", ErrRoomNotFound
		}
		logCtx.WithError(err).Error("IssueToken: Repository error")
		return "", ErrInternalServer
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  identity,
		"uid":  userID,
		"room": room.RoomCode,
		"grants": map[string]bool{
			"can_publish":   true,
			"can_subscribe": true,
		},
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.tokenSecret)
	if err != nil {
		logCtx.WithError(err).Error("IssueToken: Failed to sign media token")
		return "", ErrInternalServer
	}

	logCtx.Info("Media session token issued")
	return signed, nil
}
