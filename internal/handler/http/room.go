package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService    *service.RoomService
	summaryService *service.SummaryService
	mediaService   *service.MediaService
}

func NewRoomHandler(roomService *service.RoomService, summaryService *service.SummaryService, mediaService *service.MediaService) *RoomHandler {
	if roomService == nil || summaryService == nil || mediaService == nil {
		panic("all services must be non-nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, summaryService: summaryService, mediaService: mediaService}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	Name    string `json:"name" binding:"omitempty,max=100"`
	SurahID int    `json:"surahId" binding:"required,min=1,max=114"`
}

// CreateRoomResponse 定义创建房间成功的响应结构体
type CreateRoomResponse struct {
	Message     string `json:"message"`
	RoomID      uint   `json:"room_id"`
	RoomCode    string `json:"room_code"`
	TargetSurah string `json:"target_surah"`
	AyahCount   int    `json:"ayah_count"`
}

// CreateRoom 创建新房间并从经文 API 拉取整章脚本。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: surahId (1-114) is required"})
		return
	}

	newRoom, err := h.roomService.CreateRoom(c.Request.Context(), userID, req.Name, req.SurahID)
	if err != nil {
		logCtx.WithError(err).WithField("surah_id", req.SurahID).Error("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}

	script, _ := newRoom.ParseScript()
	logCtx.WithFields(logrus.Fields{"room_id": newRoom.ID, "room_code": newRoom.RoomCode}).Info("Handler.CreateRoom: Room created successfully")
	c.JSON(http.StatusOK, CreateRoomResponse{
		Message:     "Room created successfully",
		RoomID:      newRoom.ID,
		RoomCode:    newRoom.RoomCode,
		TargetSurah: newRoom.TargetSurah,
		AyahCount:   len(script),
	})
}

// ListActiveRooms 列出所有活跃房间，santri 据此找到要加入的 setoran。
func (h *RoomHandler) ListActiveRooms(c *gin.Context) {
	rooms, err := h.roomService.ListActiveRooms(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Handler.ListActiveRooms: Failed to list rooms")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// ListMyRooms 列出当前 admin 创建的房间。
func (h *RoomHandler) ListMyRooms(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	rooms, err := h.roomService.ListMyRooms(c.Request.Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Handler.ListMyRooms: Failed to list rooms")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// DeleteRoom 删除房间，只有创建者可以操作。
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	roomCode := c.Param("code")
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_code": roomCode})

	room, err := h.roomService.FindRoomByCode(c.Request.Context(), roomCode)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.DeleteRoom: Room lookup failed")
		HandleServiceError(c, err)
		return
	}

	if err := h.roomService.DeleteRoom(c.Request.Context(), room.ID, userID); err != nil {
		logCtx.WithError(err).Warn("Handler.DeleteRoom: Failed to delete room")
		HandleServiceError(c, err)
		return
	}

	logCtx.Info("Handler.DeleteRoom: Room deleted successfully")
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Room deleted successfully"})
}

// RoomSummary 返回某个 santri 在该房间的成绩汇总。
// user_id 查询参数缺省时取请求者自己。
func (h *RoomHandler) RoomSummary(c *gin.Context) {
	requesterID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	roomCode := c.Param("code")

	targetID := requesterID
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		targetID = uint(parsed)
	}

	summary, err := h.summaryService.GetRoomSummary(c.Request.Context(), roomCode, targetID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_code": roomCode, "user_id": targetID}).Warn("Handler.RoomSummary: Failed to build summary")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, summary)
}

// MediaTokenRequest 定义获取通话令牌请求的结构体
type MediaTokenRequest struct {
	Identity string `json:"identity" binding:"required,min=1,max=64"`
}

// MediaToken 为前端的音视频通话签发短期令牌。
func (h *RoomHandler) MediaToken(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	roomCode := c.Param("code")

	var req MediaTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: identity is required"})
		return
	}

	token, err := h.mediaService.IssueToken(c.Request.Context(), roomCode, userID, req.Identity)
	if err != nil {
		logrus.WithError(err).WithField("room_code", roomCode).Warn("Handler.MediaToken: Failed to issue token")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"token": token})
}
