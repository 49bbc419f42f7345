package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mrnpal/murojaah/internal/domain"
	"github.com/mrnpal/murojaah/internal/infra/verses"
	"github.com/mrnpal/murojaah/internal/repository"
	"github.com/mrnpal/murojaah/internal/repository/mocks"
	"github.com/mrnpal/murojaah/internal/service"
)

// mockVerseProvider 是 service.VerseProvider 的测试替身
type mockVerseProvider struct {
	mock.Mock
}

func (m *mockVerseProvider) FetchSurah(ctx context.Context, surahID int) (string, []domain.Verse, error) {
	ret := m.Called(ctx, surahID)

	var script []domain.Verse
	if ret.Get(1) != nil {
		script = ret.Get(1).([]domain.Verse)
	}
	return ret.String(0), script, ret.Error(2)
}

func sampleScript() []domain.Verse {
	return []domain.Verse{
		{Number: 1, TextArab: "قُلْ هُوَ اللَّهُ أَحَدٌ", TextLatin: "Qul huwallahu ahad"},
		{Number: 2, TextArab: "اللَّهُ الصَّمَدُ", TextLatin: "Allahus samad"},
		{Number: 3, TextArab: "لَمْ يَلِدْ وَلَمْ يُولَدْ", TextLatin: "Lam yalid walam yuulad"},
	}
}

func sampleRoom(t *testing.T) *domain.Room {
	t.Helper()
	room := &domain.Room{
		ID:          10,
		RoomCode:    "ROOM-AB12C",
		Name:        "Setoran Al-Ikhlas",
		CreatorID:   7,
		TargetSurah: "Al-Ikhlas",
		IsActive:    true,
	}
	require.NoError(t, room.SetScript(sampleScript()))
	return room
}

// --- CreateRoom ---

func TestRoomService_CreateRoom_Success(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	provider.On("FetchSurah", ctx, 112).
		Return("Al-Ikhlas", sampleScript(), nil).
		Once()
	// 房间码唯一性检查通过
	mockRoomRepo.On("IsRoomCodeExists", ctx, mock.MatchedBy(func(code string) bool {
		return strings.HasPrefix(code, "ROOM-") && len(code) == 10
	})).Return(false, nil).Once()
	mockRoomRepo.On("Save", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		assert.Equal(t, uint(7), room.CreatorID)
		assert.Equal(t, "Al-Ikhlas", room.TargetSurah)
		assert.True(t, room.IsActive)
		script, err := room.ParseScript()
		assert.NoError(t, err)
		assert.Len(t, script, 3)
		return true
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Room).ID = 10
		}).
		Return(nil).
		Once()

	room, err := roomService.CreateRoom(ctx, 7, "", 112)

	assert.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, uint(10), room.ID)
	// 未命名时使用默认房间名
	assert.Equal(t, "Setoran Room", room.Name)
	mockRoomRepo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestRoomService_CreateRoom_UpstreamFailure(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	provider.On("FetchSurah", ctx, 112).
		Return("", nil, verses.ErrUpstreamFetch).
		Once()

	room, err := roomService.CreateRoom(ctx, 7, "Setoran", 112)

	assert.Nil(t, room)
	assert.ErrorIs(t, err, service.ErrUpstreamFetch)
	// 拉取失败时不应持久化任何东西
	mockRoomRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	provider.AssertExpectations(t)
}

// --- DeleteRoom ---

func TestRoomService_DeleteRoom_Success(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	room := sampleRoom(t)
	mockRoomRepo.On("FindByID", ctx, uint(10)).Return(room, nil).Once()
	mockRoomRepo.On("Delete", ctx, uint(10)).Return(nil).Once()
	mockStateRepo.On("CleanupRoomState", ctx, uint(10)).Return(nil).Once()

	err := roomService.DeleteRoom(ctx, 10, 7)

	assert.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
	mockStateRepo.AssertExpectations(t)
}

func TestRoomService_DeleteRoom_NotOwner(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	mockRoomRepo.On("FindByID", ctx, uint(10)).Return(sampleRoom(t), nil).Once()

	err := roomService.DeleteRoom(ctx, 10, 999)

	assert.ErrorIs(t, err, service.ErrForbidden)
	mockRoomRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestRoomService_DeleteRoom_NotFound(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	mockRoomRepo.On("FindByID", ctx, uint(404)).Return(nil, repository.ErrRoomNotFound).Once()

	err := roomService.DeleteRoom(ctx, 404, 7)

	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestRoomService_DeleteRoom_CleanupFailureIsNotFatal(t *testing.T) {
	// Redis 清理失败不应影响删除结果
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	mockRoomRepo.On("FindByID", ctx, uint(10)).Return(sampleRoom(t), nil).Once()
	mockRoomRepo.On("Delete", ctx, uint(10)).Return(nil).Once()
	mockStateRepo.On("CleanupRoomState", ctx, uint(10)).Return(errors.New("redis down")).Once()

	err := roomService.DeleteRoom(ctx, 10, 7)

	assert.NoError(t, err)
	mockStateRepo.AssertExpectations(t)
}

// --- Navigate ---

func TestRoomService_Navigate_ValidRange(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	room := sampleRoom(t)

	// 合法范围是 [0, 脚本长度]，尾后位置表示全部背完
	for _, index := range []int{0, 1, 3} {
		mockStateRepo.On("SetCursor", ctx, uint(10), index).Return(nil).Once()
		assert.NoError(t, roomService.Navigate(ctx, room, index), "index %d 应被接受", index)
	}
	mockStateRepo.AssertExpectations(t)
}

func TestRoomService_Navigate_OutOfRange(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	room := sampleRoom(t)

	// 越界值被拒绝而不是被钳制
	assert.Error(t, roomService.Navigate(ctx, room, -1))
	assert.Error(t, roomService.Navigate(ctx, room, 4))
	mockStateRepo.AssertNotCalled(t, "SetCursor", mock.Anything, mock.Anything, mock.Anything)
}

// --- SessionState ---

func TestRoomService_SessionState_RedisFailureFallsBackToZero(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	mockStateRepo.On("GetCursor", ctx, uint(10)).Return(0, errors.New("redis down")).Once()
	mockStateRepo.On("GetReveal", ctx, uint(10)).Return(false, errors.New("redis down")).Once()

	cursor, revealed := roomService.SessionState(ctx, 10)

	assert.Equal(t, 0, cursor)
	assert.False(t, revealed)
}

func TestRoomService_SessionState_ReturnsStoredValues(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockStateRepo := new(mocks.StateRepository)
	provider := new(mockVerseProvider)
	roomService := service.NewRoomService(mockRoomRepo, mockStateRepo, provider)

	ctx := context.Background()
	mockStateRepo.On("GetCursor", ctx, uint(10)).Return(2, nil).Once()
	mockStateRepo.On("GetReveal", ctx, uint(10)).Return(true, nil).Once()

	cursor, revealed := roomService.SessionState(ctx, 10)

	assert.Equal(t, 2, cursor)
	assert.True(t, revealed)
}
