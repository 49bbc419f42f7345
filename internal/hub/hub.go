package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mrnpal/murojaah/internal/domain"
	"github.com/mrnpal/murojaah/internal/service"
)

// 房间内角色。由连接身份与房间归属推导，不依赖客户端声明。
const (
	roleAdmin  = "admin"
	roleSantri = "santri"
)

// 每个房间待评判尝试的排队上限。排到这里说明 AI 判定严重积压，
// 再收新尝试只会把延迟拖得更长，直接回 SERVER_ERROR。
const correctionQueueSize = 64

type hubMessage struct {
	kind    string // "register" | "unregister" | "message"
	client  *Client
	rawData []byte
}

type correctionJob struct {
	client  *Client
	request service.CorrectionRequest
}

// Hub 管理所有房间与连接，串行处理注册/注销/入站事件。
// 房间状态事件在 hub 循环内同步处理保证顺序；AI 评判走每房间
// 一条 FIFO 队列，慢的评判只拖慢自己房间。
type Hub struct {
	messageChan chan hubMessage

	roomsMu     sync.RWMutex
	rooms       map[string]map[*Client]bool
	clientsByID map[string]*Client

	corrMu     sync.Mutex
	corrQueues map[string]chan correctionJob

	roomService       *service.RoomService
	correctionService *service.CorrectionService
	logger            *logrus.Logger
}

func NewHub(roomService *service.RoomService, correctionService *service.CorrectionService, logger *logrus.Logger) *Hub {
	if roomService == nil || correctionService == nil {
		panic("hub: roomService and correctionService are required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		messageChan: make(chan hubMessage, 1024),
		rooms:       make(map[string]map[*Client]bool),
		clientsByID: make(map[string]*Client),
		corrQueues:  make(map[string]chan correctionJob),

		roomService:       roomService,
		correctionService: correctionService,
		logger:            logger,
	}
}

// Register 把连接交给 hub 循环。
func (h *Hub) Register(c *Client) {
	h.messageChan <- hubMessage{kind: "register", client: c}
}

// Unregister 连接断开时由读泵调用。
func (h *Hub) Unregister(c *Client) {
	h.messageChan <- hubMessage{kind: "unregister", client: c}
}

// Inbound 投递一条客户端原始消息。
func (h *Hub) Inbound(c *Client, raw []byte) {
	h.messageChan <- hubMessage{kind: "message", client: c, rawData: raw}
}

// Run 是 hub 的主循环，必须在独立 goroutine 里运行。
func (h *Hub) Run() {
	for msg := range h.messageChan {
		switch msg.kind {
		case "register":
			h.handleRegister(msg.client)
		case "unregister":
			h.handleUnregister(msg.client)
		case "message":
			h.dispatch(msg.client, msg.rawData)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.roomsMu.Lock()
	h.clientsByID[c.ID] = c
	h.roomsMu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"conn_id": c.ID,
		"user_id": c.UserID,
	}).Info("Client connected")
}

func (h *Hub) handleUnregister(c *Client) {
	h.roomsMu.Lock()
	delete(h.clientsByID, c.ID)

	var peers []*Client
	roomEmptied := false
	if c.roomCode != "" {
		if members, ok := h.rooms[c.roomCode]; ok {
			delete(members, c)
			for peer := range members {
				peers = append(peers, peer)
			}
			if len(members) == 0 {
				delete(h.rooms, c.roomCode)
				roomEmptied = true
			}
		}
	}
	h.roomsMu.Unlock()

	// 通话一方离开，通知剩余成员挂断
	if len(peers) > 0 {
		msg := mustMarshalEnvelope(EventCallEnded, UserJoinedPayload{ConnID: c.ID})
		for _, peer := range peers {
			peer.QueueMessage(msg)
		}
	}

	// 最后一个成员走了，回收评判队列
	if roomEmptied {
		h.releaseCorrectionQueue(c.roomCode)
	}

	c.closeSend()

	h.logger.WithFields(logrus.Fields{
		"conn_id":   c.ID,
		"user_id":   c.UserID,
		"room_code": c.roomCode,
	}).Info("Client disconnected")
}

func (h *Hub) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch env.Type {
	case EventJoinRoom:
		h.handleJoin(c, env.Payload)
	case EventCameraStatus:
		h.handleDeviceStatus(c, env.Payload, EventRemoteCameraStatus)
	case EventMicStatus:
		h.handleDeviceStatus(c, env.Payload, EventRemoteMicStatus)
	case EventAdminChangeAyat:
		h.handleChangeAyat(c, env.Payload)
	case EventAdminToggleReveal:
		h.handleToggleReveal(c, env.Payload)
	case EventAdminForceRepeat:
		h.handleForceRepeat(c, env.Payload)
	case EventLiveTranscript:
		h.handleLiveTranscript(c, env.Payload)
	case EventReqCorrection:
		h.handleReqCorrection(c, env.Payload)
	case EventSessionOffer:
		h.handleSignal(c, env.Payload, EventSessionOffer)
	case EventSessionAnswer:
		h.handleSignal(c, env.Payload, EventSessionAnswer)
	default:
		h.sendError(c, "unknown event type: "+env.Type)
	}
}

func (h *Hub) handleJoin(c *Client, payload json.RawMessage) {
	var req JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomCode == "" {
		h.sendError(c, "roomCode is required")
		return
	}
	if c.roomCode != "" {
		h.sendError(c, "already joined a room")
		return
	}

	ctx := context.Background()
	room, err := h.roomService.FindRoomByCode(ctx, req.RoomCode)
	if err != nil {
		h.sendError(c, "Room tidak ditemukan")
		return
	}
	if !room.IsActive {
		h.sendError(c, "Room sudah ditutup")
		return
	}

	role := roleSantri
	if c.UserID != 0 && c.UserID == room.CreatorID {
		role = roleAdmin
	}

	c.roomCode = room.RoomCode
	c.role = role

	h.roomsMu.Lock()
	members, ok := h.rooms[room.RoomCode]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room.RoomCode] = members
	}
	members[c] = true
	h.roomsMu.Unlock()

	script, err := room.ParseScript()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"room_code": room.RoomCode,
			"error":     err.Error(),
		}).Error("Failed to parse room script")
		script = []domain.Verse{}
	}
	cursor, revealed := h.roomService.SessionState(ctx, room.ID)

	c.QueueMessage(mustMarshalEnvelope(EventRoomData, RoomDataPayload{
		RoomCode:    room.RoomCode,
		Name:        room.Name,
		TargetSurah: room.TargetSurah,
		Script:      script,
		CursorIndex: cursor,
		Revealed:    revealed,
		Role:        role,
	}))

	h.broadcast(room.RoomCode, mustMarshalEnvelope(EventUserJoined, UserJoinedPayload{ConnID: c.ID}), c)

	h.logger.WithFields(logrus.Fields{
		"conn_id":   c.ID,
		"user_id":   c.UserID,
		"room_code": room.RoomCode,
		"role":      role,
	}).Info("Client joined room")
}

func (h *Hub) handleDeviceStatus(c *Client, payload json.RawMessage, outEvent string) {
	var req DeviceStatusPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, "invalid payload")
		return
	}
	if !h.requireMembership(c, req.RoomCode) {
		return
	}
	h.broadcast(c.roomCode, mustMarshalEnvelope(outEvent, RemoteDeviceStatusPayload{Enabled: req.Enabled}), c)
}

func (h *Hub) handleChangeAyat(c *Client, payload json.RawMessage) {
	var req ChangeAyatPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, "invalid payload")
		return
	}
	if !h.requireMembership(c, req.RoomCode) || !h.requireAdmin(c) {
		return
	}

	ctx := context.Background()
	room, err := h.roomService.FindRoomByCode(ctx, c.roomCode)
	if err != nil {
		h.sendError(c, "Room tidak ditemukan")
		return
	}
	if err := h.roomService.Navigate(ctx, room, req.NewIndex); err != nil {
		h.sendError(c, "posisi ayat di luar jangkauan")
		return
	}
	h.broadcast(c.roomCode, mustMarshalEnvelope(EventSyncAyatIndex, SyncAyatIndexPayload{NewIndex: req.NewIndex}), nil)
}

func (h *Hub) handleToggleReveal(c *Client, payload json.RawMessage) {
	var req ToggleRevealPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, "invalid payload")
		return
	}
	if !h.requireMembership(c, req.RoomCode) || !h.requireAdmin(c) {
		return
	}

	ctx := context.Background()
	room, err := h.roomService.FindRoomByCode(ctx, c.roomCode)
	if err != nil {
		h.sendError(c, "Room tidak ditemukan")
		return
	}
	if err := h.roomService.SetReveal(ctx, room.ID, req.Revealed); err != nil {
		h.logger.WithFields(logrus.Fields{
			"room_code": c.roomCode,
			"error":     err.Error(),
		}).Warn("Failed to persist reveal flag")
	}
	h.broadcast(c.roomCode, mustMarshalEnvelope(EventSyncAyatReveal, SyncAyatRevealPayload{Revealed: req.Revealed}), nil)
}

// handleForceRepeat 把 admin 的人工裁决当成一次评判结果广播，
// 不经过 AI，也不写学习档案。
func (h *Hub) handleForceRepeat(c *Client, payload json.RawMessage) {
	var req ForceRepeatPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, "invalid payload")
		return
	}
	if !h.requireMembership(c, req.RoomCode) || !h.requireAdmin(c) {
		return
	}

	verdict := req.Verdict
	verdict.ErrorType = domain.ErrorTypeAdminOverride
	h.broadcast(c.roomCode, mustMarshalEnvelope(EventResCorrection, verdict), nil)
}

func (h *Hub) handleLiveTranscript(c *Client, payload json.RawMessage) {
	var req LiveTranscriptPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	if c.roomCode == "" {
		return
	}
	// 转写内容不进日志
	h.broadcast(c.roomCode, mustMarshalEnvelope(EventRemoteLiveTranscript, RemoteTranscriptPayload{Text: req.Text}), c)
}

func (h *Hub) handleReqCorrection(c *Client, payload json.RawMessage) {
	var req CorrectionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, "invalid payload")
		return
	}
	if !h.requireMembership(c, req.RoomCode) {
		return
	}

	userID := c.UserID
	if userID == 0 {
		userID = req.UserID
	}
	job := correctionJob{
		client: c,
		request: service.CorrectionRequest{
			RoomCode:          c.roomCode,
			UserID:            userID,
			CandidateText:     req.CandidateText,
			TargetVerseText:   req.TargetVerseText,
			ExpectedAyatIndex: req.ExpectedAyatIndex,
		},
	}

	queue := h.correctionQueue(c.roomCode)
	select {
	case queue <- job:
	default:
		h.logger.WithField("room_code", c.roomCode).Error("Correction queue overflow")
		h.broadcast(c.roomCode, mustMarshalEnvelope(EventResCorrection, domain.Verdict{
			IsCorrect:      false,
			ErrorType:      domain.ErrorTypeServerError,
			AdminMessage:   "Gagal memproses di server: antrean penuh.",
			SantriGuidance: "Error, coba lagi.",
		}), nil)
	}
}

// correctionQueue 返回房间的 FIFO 评判队列，按需启动消费 goroutine。
// 队列在房间走空时由 releaseCorrectionQueue 回收。
func (h *Hub) correctionQueue(roomCode string) chan correctionJob {
	h.corrMu.Lock()
	defer h.corrMu.Unlock()

	queue, ok := h.corrQueues[roomCode]
	if !ok {
		queue = make(chan correctionJob, correctionQueueSize)
		h.corrQueues[roomCode] = queue
		go h.runCorrectionWorker(roomCode, queue)
	}
	return queue
}

// releaseCorrectionQueue 关闭并移除房间的评判队列。
// 入队只发生在 hub 循环里，和这里的 close 在同一 goroutine，
// 不存在向已关闭通道发送的竞争；worker 把剩余任务跑完后自行退出。
func (h *Hub) releaseCorrectionQueue(roomCode string) {
	h.corrMu.Lock()
	defer h.corrMu.Unlock()

	if queue, ok := h.corrQueues[roomCode]; ok {
		close(queue)
		delete(h.corrQueues, roomCode)
	}
}

func (h *Hub) runCorrectionWorker(roomCode string, queue chan correctionJob) {
	for job := range queue {
		verdict, ok := h.correctionService.ProcessAttempt(context.Background(), job.request)
		if !ok {
			// 空白尝试，按协议静默忽略
			continue
		}
		h.broadcast(roomCode, mustMarshalEnvelope(EventResCorrection, verdict), nil)
	}
}

// handleSignal 把 offer/answer 原样转发给目标连接。
func (h *Hub) handleSignal(c *Client, payload json.RawMessage, outEvent string) {
	var req SignalPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.TargetConnID == "" {
		h.sendError(c, "invalid signal payload")
		return
	}

	h.roomsMu.RLock()
	target, ok := h.clientsByID[req.TargetConnID]
	h.roomsMu.RUnlock()
	if !ok {
		h.sendError(c, "target connection not found")
		return
	}

	target.QueueMessage(mustMarshalEnvelope(outEvent, RemoteSignalPayload{
		From: c.ID,
		Data: req.Data,
	}))
}

// requireMembership 校验发送方确实在它声称的房间里。
func (h *Hub) requireMembership(c *Client, roomCode string) bool {
	if c.roomCode == "" || (roomCode != "" && roomCode != c.roomCode) {
		h.sendError(c, "not a member of this room")
		return false
	}
	return true
}

// requireAdmin 校验 admin_* 事件的发送方角色。角色在 join 时由服务端
// 推导，客户端伪造不了。
func (h *Hub) requireAdmin(c *Client) bool {
	if c.role != roleAdmin {
		h.logger.WithFields(logrus.Fields{
			"conn_id":   c.ID,
			"user_id":   c.UserID,
			"room_code": c.roomCode,
		}).Warn("Rejected admin event from non-admin connection")
		h.sendError(c, "admin only")
		return false
	}
	return true
}

// broadcast 把消息发给房间全体成员，exclude 非 nil 时跳过该连接。
func (h *Hub) broadcast(roomCode string, message []byte, exclude *Client) {
	if message == nil {
		return
	}
	h.roomsMu.RLock()
	members, ok := h.rooms[roomCode]
	if !ok {
		h.roomsMu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(members))
	for member := range members {
		if member != exclude {
			targets = append(targets, member)
		}
	}
	h.roomsMu.RUnlock()

	for _, target := range targets {
		target.QueueMessage(message)
	}
}

func (h *Hub) sendError(c *Client, message string) {
	c.QueueMessage(mustMarshalEnvelope(EventRoomError, RoomErrorPayload{Message: message}))
}
