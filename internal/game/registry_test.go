package game

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/teleprompt/internal/errors"
)

func TestCreateOrJoin(t *testing.T) {
	registry := newTestRegistry()

	// 非创建者不能开新房
	_, err := registry.CreateOrJoin("ROOM", "B", "conn-b", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrRoomNotFound, errors.GetCode(err))

	// 创建者开房
	result, err := registry.CreateOrJoin("ROOM", "A", "conn-a", true)
	require.NoError(t, err)
	assert.True(t, result.IsCreator)
	assert.False(t, result.ReadyToStart, "单人不可开局")
	assert.Equal(t, []string{"A"}, result.Players)
	assert.Equal(t, ModeNormal, result.Settings.Mode)

	// 第二人加入后满足开局条件
	result, err = registry.CreateOrJoin("ROOM", "B", "conn-b", false)
	require.NoError(t, err)
	assert.False(t, result.IsCreator)
	assert.True(t, result.ReadyToStart)
	assert.Equal(t, []string{"A", "B"}, result.Players, "花名册按加入顺序")
}

func TestJoinReconnection(t *testing.T) {
	registry := newTestRegistry()

	registry.CreateOrJoin("ROOM", "A", "conn-a", true)
	registry.CreateOrJoin("ROOM", "B", "conn-b", false)

	// 同名重连只换绑连接，花名册不变
	result, err := registry.CreateOrJoin("ROOM", "A", "conn-a2", false)
	require.NoError(t, err)
	assert.True(t, result.Rebound)
	assert.Len(t, result.Players, 2)
	assert.True(t, result.IsCreator, "重连保留创建者身份")

	room, err := registry.room("ROOM")
	require.NoError(t, err)
	assert.Equal(t, "conn-a2", room.roster[0].ClientID)
	assert.Equal(t, "A", room.roster[0].Name, "重连不改变花名册顺序")
}

func TestJoinRoomFull(t *testing.T) {
	registry := newTestRegistry() // 上限4人

	registry.CreateOrJoin("ROOM", "A", "c1", true)
	for _, name := range []string{"B", "C", "D"} {
		_, err := registry.CreateOrJoin("ROOM", name, "c-"+name, false)
		require.NoError(t, err)
	}

	_, err := registry.CreateOrJoin("ROOM", "E", "c5", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrRoomFull, errors.GetCode(err))

	// 满房时已有玩家仍可重连
	result, err := registry.CreateOrJoin("ROOM", "D", "c-d2", false)
	require.NoError(t, err)
	assert.True(t, result.Rebound)
}

func TestUpdateSettings(t *testing.T) {
	registry := newTestRegistry()
	registry.CreateOrJoin("ROOM", "A", "conn-a", true)
	registry.CreateOrJoin("ROOM", "B", "conn-b", false)

	// 非创建者修改被拒，设置原样
	limit := 30
	_, err := registry.UpdateSettings("ROOM", "B", SettingsPatch{TimeLimitSeconds: &limit})
	require.Error(t, err)
	assert.Equal(t, errors.ErrForbidden, errors.GetCode(err))

	room, _ := registry.room("ROOM")
	assert.Equal(t, 20, room.Settings().TimeLimitSeconds)

	// 创建者增量修改
	mode := ModeInverted
	settings, err := registry.UpdateSettings("ROOM", "A", SettingsPatch{Mode: &mode})
	require.NoError(t, err)
	assert.Equal(t, ModeInverted, settings.Mode)
	assert.Equal(t, 20, settings.TimeLimitSeconds, "未出现的字段保持原值")

	// 非法模式被拒
	bad := GameMode("speedrun")
	_, err = registry.UpdateSettings("ROOM", "A", SettingsPatch{Mode: &bad})
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidParam, errors.GetCode(err))
}

func TestRemoveConnection(t *testing.T) {
	registry := newTestRegistry()
	registry.CreateOrJoin("ROOM", "A", "conn-a", true)
	registry.CreateOrJoin("ROOM", "B", "conn-b", false)

	updates := registry.RemoveConnection("conn-b")
	require.Len(t, updates, 1)
	assert.Equal(t, "B", updates[0].PlayerName)
	assert.Equal(t, []string{"A"}, updates[0].Players)
	assert.False(t, updates[0].RoomDeleted)
	assert.False(t, updates[0].ReadyToStart)

	// 最后一人断开且无会话，房间删除
	updates = registry.RemoveConnection("conn-a")
	require.Len(t, updates, 1)
	assert.True(t, updates[0].RoomDeleted)
	assert.Equal(t, 0, registry.RoomCount())

	// 未知连接无事发生
	assert.Empty(t, registry.RemoveConnection("conn-x"))
}

func TestRemoveConnectionKeepsActiveSession(t *testing.T) {
	registry := newTestRegistry()
	engine := NewEngine(registry, &fakeArtifacts{block: make(chan struct{})}, time.Second)

	registry.CreateOrJoin("ROOM", "A", "conn-a", true)
	registry.CreateOrJoin("ROOM", "B", "conn-b", false)
	require.NoError(t, engine.Start("ROOM", "A"))

	// 会话进行中，全员断开也只清花名册不删房
	registry.RemoveConnection("conn-a")
	updates := registry.RemoveConnection("conn-b")
	require.Len(t, updates, 1)
	assert.False(t, updates[0].RoomDeleted)
	assert.Equal(t, 1, registry.RoomCount())

	// 轮转快照不受断开影响
	room, err := registry.room("ROOM")
	require.NoError(t, err)
	room.mu.Lock()
	assert.Len(t, room.session.Players, 2)
	room.mu.Unlock()
}

// TestJoinConcurrentWithLeave 加入和最后一人断开对撞：
// 加入一旦成功，房间必须还挂在注册表里，不能落到孤儿房间上。
func TestJoinConcurrentWithLeave(t *testing.T) {
	registry := newTestRegistry()

	for i := 0; i < 200; i++ {
		code := fmt.Sprintf("R%03d", i)
		_, err := registry.CreateOrJoin(code, "A", "conn-a", true)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var joinErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, joinErr = registry.CreateOrJoin(code, "B", "conn-b", false)
		}()
		go func() {
			defer wg.Done()
			registry.RemoveConnection("conn-a")
		}()
		wg.Wait()

		if joinErr != nil {
			// A先走导致房间删除，加入按房间不存在拒绝
			assert.Equal(t, errors.ErrRoomNotFound, errors.GetCode(joinErr))
			continue
		}
		assert.Contains(t, registry.ClientsIn(code), "conn-b",
			"加入成功后房间必须可查")
		registry.RemoveConnection("conn-b")
	}
}

func TestCleanupExpired(t *testing.T) {
	registry := newTestRegistry()
	engine := NewEngine(registry, &fakeArtifacts{}, time.Second)

	registry.CreateOrJoin("ROOM", "A", "conn-a", true)
	registry.CreateOrJoin("ROOM", "B", "conn-b", false)
	require.NoError(t, engine.Start("ROOM", "A"))

	// 两次超时直接完赛
	require.NoError(t, engine.Timeout("ROOM"))
	require.NoError(t, engine.Timeout("ROOM"))

	// 留存期内可查结果
	assert.Equal(t, 0, registry.CleanupExpired(time.Now()))
	_, err := engine.Results("ROOM")
	assert.NoError(t, err)

	// 留存期过后结果释放
	assert.Equal(t, 1, registry.CleanupExpired(time.Now().Add(2*time.Hour)))
	_, err = engine.Results("ROOM")
	require.Error(t, err)
	assert.Equal(t, errors.ErrGameNotFound, errors.GetCode(err))

	// 玩家都走了的话房间也随之删除
	registry.RemoveConnection("conn-a")
	registry.RemoveConnection("conn-b")
	registry.CleanupExpired(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 0, registry.RoomCount())
}
