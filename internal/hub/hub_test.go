package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrnpal/murojaah/internal/domain"
	"github.com/mrnpal/murojaah/internal/judge"
	"github.com/mrnpal/murojaah/internal/repository"
	"github.com/mrnpal/murojaah/internal/repository/mocks"
	"github.com/mrnpal/murojaah/internal/service"
)

// stubJudge 返回固定裁决
type stubJudge struct {
	verdict domain.Verdict
	err     error
}

func (s *stubJudge) Evaluate(ctx context.Context, req judge.Request) (domain.Verdict, error) {
	return s.verdict, s.err
}

// stubEnqueuer 记录入队次数
type stubEnqueuer struct {
	enqueued int
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.enqueued++
	return &asynq.TaskInfo{}, nil
}

type hubFixture struct {
	hub       *Hub
	roomRepo  *mocks.RoomRepository
	stateRepo *mocks.StateRepository
	enqueuer  *stubEnqueuer
}

func newHubFixture(t *testing.T, j judge.Judge) *hubFixture {
	t.Helper()
	roomRepo := new(mocks.RoomRepository)
	stateRepo := new(mocks.StateRepository)
	enq := &stubEnqueuer{}

	provider := verseProviderFunc(func(ctx context.Context, surahID int) (string, []domain.Verse, error) {
		return "", nil, fmt.Errorf("not used in hub tests")
	})
	roomService := service.NewRoomService(roomRepo, stateRepo, provider)
	if j == nil {
		j = &stubJudge{verdict: domain.Verdict{IsCorrect: true, ErrorType: domain.ErrorTypeNone}}
	}
	correctionService := service.NewCorrectionService(roomRepo, j, enq, time.Second)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return &hubFixture{
		hub:       NewHub(roomService, correctionService, logger),
		roomRepo:  roomRepo,
		stateRepo: stateRepo,
		enqueuer:  enq,
	}
}

type verseProviderFunc func(ctx context.Context, surahID int) (string, []domain.Verse, error)

func (f verseProviderFunc) FetchSurah(ctx context.Context, surahID int) (string, []domain.Verse, error) {
	return f(ctx, surahID)
}

func testRoom(t *testing.T) *domain.Room {
	t.Helper()
	room := &domain.Room{
		ID:          10,
		RoomCode:    "ROOM-AB12C",
		Name:        "Setoran Al-Ikhlas",
		CreatorID:   7,
		TargetSurah: "Al-Ikhlas",
		IsActive:    true,
	}
	require.NoError(t, room.SetScript([]domain.Verse{
		{Number: 1, TextLatin: "Qul huwallahu ahad"},
		{Number: 2, TextLatin: "Allahus samad"},
	}))
	return room
}

func newTestClient(h *Hub, userID uint) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    h,
		send:   make(chan []byte, 16),
	}
	h.handleRegister(c)
	return c
}

// receiveEnvelope 从客户端出站缓冲读一条消息，带超时
func receiveEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return Envelope{}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected outbound message: %s", raw)
	default:
	}
}

func joinPayload(roomCode string) json.RawMessage {
	raw, _ := json.Marshal(JoinRoomPayload{RoomCode: roomCode})
	return raw
}

// joinRoom 让客户端完成加入流程并吃掉 room_data
func joinRoom(t *testing.T, f *hubFixture, c *Client, room *domain.Room) {
	t.Helper()
	f.roomRepo.On("FindByRoomCode", context.Background(), room.RoomCode).Return(room, nil).Once()
	f.stateRepo.On("GetCursor", context.Background(), room.ID).Return(0, nil).Once()
	f.stateRepo.On("GetReveal", context.Background(), room.ID).Return(false, nil).Once()

	f.hub.handleJoin(c, joinPayload(room.RoomCode))
	env := receiveEnvelope(t, c)
	require.Equal(t, EventRoomData, env.Type)
}

// --- join_room ---

func TestHub_Join_UnknownRoomCode(t *testing.T) {
	f := newHubFixture(t, nil)
	c := newTestClient(f.hub, 42)

	f.roomRepo.On("FindByRoomCode", context.Background(), "ROOM-GHOST").
		Return(nil, repository.ErrRoomNotFound).Once()

	f.hub.handleJoin(c, joinPayload("ROOM-GHOST"))

	env := receiveEnvelope(t, c)
	assert.Equal(t, EventRoomError, env.Type)
	assert.Empty(t, c.roomCode, "加入失败时连接不应绑定任何房间")
}

func TestHub_Join_AdminRoleDerivedFromCreator(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	c := newTestClient(f.hub, room.CreatorID)

	f.roomRepo.On("FindByRoomCode", context.Background(), room.RoomCode).Return(room, nil).Once()
	f.stateRepo.On("GetCursor", context.Background(), room.ID).Return(1, nil).Once()
	f.stateRepo.On("GetReveal", context.Background(), room.ID).Return(true, nil).Once()

	f.hub.handleJoin(c, joinPayload(room.RoomCode))

	env := receiveEnvelope(t, c)
	require.Equal(t, EventRoomData, env.Type)
	var data RoomDataPayload
	require.NoError(t, json.Unmarshal(env.Payload, &data))
	assert.Equal(t, roleAdmin, data.Role, "创建者加入应得到 admin 角色")
	assert.Equal(t, 1, data.CursorIndex, "快照应携带当前游标")
	assert.True(t, data.Revealed)
	assert.Len(t, data.Script, 2)
	assert.Equal(t, roleAdmin, c.role)
}

func TestHub_Join_NotifiesExistingMembers(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	admin := newTestClient(f.hub, room.CreatorID)
	joinRoom(t, f, admin, room)

	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)
	assert.Equal(t, roleSantri, santri.role)

	// 已有成员收到 user_joined，携带新连接的 ID
	env := receiveEnvelope(t, admin)
	require.Equal(t, EventUserJoined, env.Type)
	var joined UserJoinedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &joined))
	assert.Equal(t, santri.ID, joined.ConnID)
}

func TestHub_Join_SecondJoinRejected(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	c := newTestClient(f.hub, 42)
	joinRoom(t, f, c, room)

	f.hub.handleJoin(c, joinPayload("ROOM-OTHER"))

	env := receiveEnvelope(t, c)
	assert.Equal(t, EventRoomError, env.Type)
	assert.Equal(t, room.RoomCode, c.roomCode, "原有房间绑定不应被改写")
}

// --- admin 事件的角色校验 ---

func TestHub_AdminEvent_RejectedForSantri(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)

	payload, _ := json.Marshal(ChangeAyatPayload{RoomCode: room.RoomCode, NewIndex: 1})
	f.hub.handleChangeAyat(santri, payload)

	env := receiveEnvelope(t, santri)
	assert.Equal(t, EventRoomError, env.Type)
	f.stateRepo.AssertNotCalled(t, "SetCursor", context.Background(), room.ID, 1)
}

func TestHub_ChangeAyat_BroadcastToAllIncludingSender(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	admin := newTestClient(f.hub, room.CreatorID)
	joinRoom(t, f, admin, room)
	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)
	receiveEnvelope(t, admin) // user_joined

	f.roomRepo.On("FindByRoomCode", context.Background(), room.RoomCode).Return(room, nil).Once()
	f.stateRepo.On("SetCursor", context.Background(), room.ID, 1).Return(nil).Once()

	payload, _ := json.Marshal(ChangeAyatPayload{RoomCode: room.RoomCode, NewIndex: 1})
	f.hub.handleChangeAyat(admin, payload)

	// 游标同步广播给包括 admin 在内的所有成员
	for _, member := range []*Client{admin, santri} {
		env := receiveEnvelope(t, member)
		require.Equal(t, EventSyncAyatIndex, env.Type)
		var sync SyncAyatIndexPayload
		require.NoError(t, json.Unmarshal(env.Payload, &sync))
		assert.Equal(t, 1, sync.NewIndex)
	}
	f.stateRepo.AssertExpectations(t)
}

func TestHub_ChangeAyat_OutOfRangeRejected(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	admin := newTestClient(f.hub, room.CreatorID)
	joinRoom(t, f, admin, room)

	f.roomRepo.On("FindByRoomCode", context.Background(), room.RoomCode).Return(room, nil).Once()

	// 脚本只有 2 节，索引 5 越界
	payload, _ := json.Marshal(ChangeAyatPayload{RoomCode: room.RoomCode, NewIndex: 5})
	f.hub.handleChangeAyat(admin, payload)

	env := receiveEnvelope(t, admin)
	assert.Equal(t, EventRoomError, env.Type)
	f.stateRepo.AssertNotCalled(t, "SetCursor", context.Background(), room.ID, 5)
}

// --- admin_force_repeat ---

func TestHub_ForceRepeat_StampsAdminOverrideAndSkipsLog(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	admin := newTestClient(f.hub, room.CreatorID)
	joinRoom(t, f, admin, room)
	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)
	receiveEnvelope(t, admin) // user_joined

	payload, _ := json.Marshal(ForceRepeatPayload{
		RoomCode: room.RoomCode,
		Verdict: domain.Verdict{
			IsCorrect:      false,
			ErrorType:      "WRONG_WORD", // 客户端填什么都会被改写
			AdminMessage:   "Ulangi dari awal.",
			SantriGuidance: "Ulangi ayat ini.",
		},
	})
	f.hub.handleForceRepeat(admin, payload)

	env := receiveEnvelope(t, santri)
	require.Equal(t, EventResCorrection, env.Type)
	var verdict domain.Verdict
	require.NoError(t, json.Unmarshal(env.Payload, &verdict))
	assert.Equal(t, domain.ErrorTypeAdminOverride, verdict.ErrorType)
	assert.Equal(t, "Ulangi dari awal.", verdict.AdminMessage)

	// 人工裁决不写学习档案
	assert.Zero(t, f.enqueuer.enqueued)
}

// --- live_transcript ---

func TestHub_LiveTranscript_RelayedExcludingSender(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	admin := newTestClient(f.hub, room.CreatorID)
	joinRoom(t, f, admin, room)
	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)
	receiveEnvelope(t, admin) // user_joined

	payload, _ := json.Marshal(LiveTranscriptPayload{RoomCode: room.RoomCode, Text: "qul huwallahu"})
	f.hub.handleLiveTranscript(santri, payload)

	env := receiveEnvelope(t, admin)
	require.Equal(t, EventRemoteLiveTranscript, env.Type)
	var transcript RemoteTranscriptPayload
	require.NoError(t, json.Unmarshal(env.Payload, &transcript))
	assert.Equal(t, "qul huwallahu", transcript.Text)

	assertNoMessage(t, santri)
}

// --- req_correction ---

func TestHub_ReqCorrection_BroadcastsVerdictToRoom(t *testing.T) {
	want := domain.Verdict{
		IsCorrect:      true,
		ErrorType:      domain.ErrorTypeNone,
		AdminMessage:   "Bacaan benar.",
		SantriGuidance: "Lanjut.",
	}
	f := newHubFixture(t, &stubJudge{verdict: want})
	room := testRoom(t)
	admin := newTestClient(f.hub, room.CreatorID)
	joinRoom(t, f, admin, room)
	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)
	receiveEnvelope(t, admin) // user_joined

	// 评判 worker 会再查一次房间
	f.roomRepo.On("FindByRoomCode", context.Background(), room.RoomCode).Return(room, nil).Once()

	payload, _ := json.Marshal(CorrectionPayload{
		RoomCode:          room.RoomCode,
		CandidateText:     "qul huwallahu ahad",
		ExpectedAyatIndex: 0,
	})
	f.hub.handleReqCorrection(santri, payload)

	// 裁决广播给房间全体成员
	for _, member := range []*Client{admin, santri} {
		env := receiveEnvelope(t, member)
		require.Equal(t, EventResCorrection, env.Type)
		var verdict domain.Verdict
		require.NoError(t, json.Unmarshal(env.Payload, &verdict))
		assert.Equal(t, want, verdict)
	}
}

func TestHub_ReqCorrection_EmptyCandidateIsSilent(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)

	payload, _ := json.Marshal(CorrectionPayload{
		RoomCode:      room.RoomCode,
		CandidateText: "   ",
	})
	f.hub.handleReqCorrection(santri, payload)

	// 给评判队列一点时间跑完 no-op
	time.Sleep(100 * time.Millisecond)
	assertNoMessage(t, santri)
	assert.Zero(t, f.enqueuer.enqueued)
}

// --- 信令转发 ---

func TestHub_Signal_RelayedToTargetOnly(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	admin := newTestClient(f.hub, room.CreatorID)
	joinRoom(t, f, admin, room)
	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)
	receiveEnvelope(t, admin) // user_joined

	offer := json.RawMessage(`{"sdp":"v=0...","type":"offer"}`)
	payload, _ := json.Marshal(SignalPayload{TargetConnID: santri.ID, Data: offer})
	f.hub.handleSignal(admin, payload, EventSessionOffer)

	env := receiveEnvelope(t, santri)
	require.Equal(t, EventSessionOffer, env.Type)
	var relayed RemoteSignalPayload
	require.NoError(t, json.Unmarshal(env.Payload, &relayed))
	assert.Equal(t, admin.ID, relayed.From)
	assert.JSONEq(t, string(offer), string(relayed.Data))

	assertNoMessage(t, admin)
}

func TestHub_Signal_UnknownTarget(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	c := newTestClient(f.hub, 42)
	joinRoom(t, f, c, room)

	payload, _ := json.Marshal(SignalPayload{TargetConnID: "no-such-conn", Data: json.RawMessage(`{}`)})
	f.hub.handleSignal(c, payload, EventSessionAnswer)

	env := receiveEnvelope(t, c)
	assert.Equal(t, EventRoomError, env.Type)
}

// --- 断开 ---

func TestHub_Broadcast_DuringDisconnectDoesNotPanic(t *testing.T) {
	// 评判 worker 的裁决广播和 hub 循环的注销可能并发：广播在锁外
	// 向成员的出站通道投递，注销关闭通道。两者交错绝不能炸进程。
	f := newHubFixture(t, nil)
	room := testRoom(t)

	members := make([]*Client, 64)
	f.hub.roomsMu.Lock()
	f.hub.rooms[room.RoomCode] = make(map[*Client]bool)
	for i := range members {
		c := &Client{ID: uuid.NewString(), UserID: uint(100 + i), hub: f.hub, send: make(chan []byte, 1)}
		c.roomCode = room.RoomCode
		f.hub.clientsByID[c.ID] = c
		f.hub.rooms[room.RoomCode][c] = true
		members[i] = c
	}
	f.hub.roomsMu.Unlock()

	msg := mustMarshalEnvelope(EventResCorrection, domain.Verdict{IsCorrect: true, ErrorType: domain.ErrorTypeNone})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			f.hub.broadcast(room.RoomCode, msg, nil)
		}
	}()
	for _, member := range members {
		f.hub.handleUnregister(member)
	}
	<-done

	// 注销后的投递是静默 no-op
	members[0].QueueMessage(msg)
}

func TestHub_QueueMessage_AfterDisconnectIsNoop(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	c := newTestClient(f.hub, 42)
	joinRoom(t, f, c, room)

	f.hub.handleUnregister(c)

	// 通道已关闭，再投递不应 panic 也不应阻塞
	c.QueueMessage(mustMarshalEnvelope(EventRoomError, RoomErrorPayload{Message: "late"}))
	c.QueueMessage(nil)
}

func TestHub_CorrectionQueue_ReclaimedWhenRoomEmpties(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	c := newTestClient(f.hub, 42)
	joinRoom(t, f, c, room)

	// 触发评判队列创建
	payload, _ := json.Marshal(CorrectionPayload{
		RoomCode:      room.RoomCode,
		CandidateText: "  ",
	})
	f.hub.handleReqCorrection(c, payload)

	f.hub.corrMu.Lock()
	_, exists := f.hub.corrQueues[room.RoomCode]
	f.hub.corrMu.Unlock()
	require.True(t, exists, "首次尝试应创建房间的评判队列")

	f.hub.handleUnregister(c)

	f.hub.corrMu.Lock()
	_, exists = f.hub.corrQueues[room.RoomCode]
	f.hub.corrMu.Unlock()
	assert.False(t, exists, "最后一个成员离开后评判队列应被回收")
}

func TestHub_Disconnect_NotifiesPeersWithCallEnded(t *testing.T) {
	f := newHubFixture(t, nil)
	room := testRoom(t)
	admin := newTestClient(f.hub, room.CreatorID)
	joinRoom(t, f, admin, room)
	santri := newTestClient(f.hub, 42)
	joinRoom(t, f, santri, room)
	receiveEnvelope(t, admin) // user_joined

	f.hub.handleUnregister(santri)

	env := receiveEnvelope(t, admin)
	assert.Equal(t, EventCallEnded, env.Type)
}
