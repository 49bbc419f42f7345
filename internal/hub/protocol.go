package hub

import (
	"encoding/json"

	"github.com/mrnpal/murojaah/internal/domain"
)

// Envelope 是 WebSocket 双向消息的统一外壳。
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// 客户端 → 服务端 事件类型
const (
	EventJoinRoom          = "join_room"
	EventCameraStatus      = "camera_status"
	EventMicStatus         = "mic_status"
	EventAdminChangeAyat   = "admin_change_ayat"
	EventAdminToggleReveal = "admin_toggle_reveal"
	EventAdminForceRepeat  = "admin_force_repeat"
	EventLiveTranscript    = "live_transcript"
	EventReqCorrection     = "req_correction"
	EventSessionOffer      = "session_offer"
	EventSessionAnswer     = "session_answer"
)

// 服务端 → 客户端 事件类型
const (
	EventRoomData             = "room_data"
	EventRoomError            = "room_error"
	EventUserJoined           = "user_joined"
	EventCallEnded            = "call_ended"
	EventSyncAyatIndex        = "sync_ayat_index"
	EventSyncAyatReveal       = "sync_ayat_reveal"
	EventRemoteLiveTranscript = "remote_live_transcript"
	EventResCorrection        = "res_correction"
	EventRemoteCameraStatus   = "remote_camera_status"
	EventRemoteMicStatus      = "remote_mic_status"
)

// --- 入站 payload ---

// JoinRoomPayload 请求加入房间。
type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
}

// DeviceStatusPayload 摄像头/麦克风开关状态。
type DeviceStatusPayload struct {
	RoomCode string `json:"roomCode"`
	Enabled  bool   `json:"enabled"`
}

// ChangeAyatPayload admin 导航到新的 ayat 索引。
// NewIndex 由客户端按 ±1 计算，服务端校验范围 [0, 脚本长度]。
type ChangeAyatPayload struct {
	RoomCode string `json:"roomCode"`
	NewIndex int    `json:"newIndex"`
}

// ToggleRevealPayload admin 切换 santri 端的经文显示。
type ToggleRevealPayload struct {
	RoomCode string `json:"roomCode"`
	Revealed bool   `json:"revealed"`
}

// ForceRepeatPayload admin 不经 AI 直接下发"重背"裁决。
type ForceRepeatPayload struct {
	RoomCode string         `json:"roomCode"`
	Verdict  domain.Verdict `json:"verdict"`
}

// LiveTranscriptPayload 语音识别的实时局部转写。系统里频率最高的事件，
// 只转发，绝不落日志或持久化。
type LiveTranscriptPayload struct {
	RoomCode string `json:"roomCode"`
	Text     string `json:"text"`
}

// CorrectionPayload 一次背诵尝试。
type CorrectionPayload struct {
	RoomCode          string `json:"roomCode"`
	UserID            uint   `json:"userId"`
	CandidateText     string `json:"candidateText"`
	TargetVerseText   string `json:"targetVerseText"`
	ExpectedAyatIndex int    `json:"expectedAyatIndex"`
}

// SignalPayload 呼叫协商消息 (offer/answer)。Data 是不透明的信令内容，
// 服务端原样转发给目标连接，从不解析。
type SignalPayload struct {
	TargetConnID string          `json:"targetConnId"`
	From         string          `json:"from,omitempty"`
	Data         json.RawMessage `json:"data"`
}

// --- 出站 payload ---

// RoomDataPayload 加入成功时推送的房间快照。
type RoomDataPayload struct {
	RoomCode    string         `json:"roomCode"`
	Name        string         `json:"name"`
	TargetSurah string         `json:"targetSurah"`
	Script      []domain.Verse `json:"script"`
	CursorIndex int            `json:"cursorIndex"`
	Revealed    bool           `json:"revealed"`
	Role        string         `json:"role"`
}

// RoomErrorPayload 带可读原因的带内错误。
type RoomErrorPayload struct {
	Message string `json:"message"`
}

// UserJoinedPayload 通知已有成员有新连接加入 (只携带连接 ID，不带身份)。
type UserJoinedPayload struct {
	ConnID string `json:"connId"`
}

// SyncAyatIndexPayload 广播新的游标位置。
type SyncAyatIndexPayload struct {
	NewIndex int `json:"newIndex"`
}

// SyncAyatRevealPayload 广播新的揭示标志。
type SyncAyatRevealPayload struct {
	Revealed bool `json:"revealed"`
}

// RemoteTranscriptPayload 转发给对端的实时转写。
type RemoteTranscriptPayload struct {
	Text string `json:"text"`
}

// RemoteDeviceStatusPayload 转发给对端的设备状态。
type RemoteDeviceStatusPayload struct {
	Enabled bool `json:"enabled"`
}

// RemoteSignalPayload 转发给目标连接的信令。
type RemoteSignalPayload struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// mustMarshalEnvelope 序列化一条出站消息。payload 均为本包定义的可序列化
// 结构体，Marshal 失败属于编程错误，返回 nil 让调用方丢弃该消息。
func mustMarshalEnvelope(eventType string, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	bytes, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return nil
	}
	return bytes
}
