package game

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/logger"
)

// JoinResult 加入房间的结果快照
type JoinResult struct {
	RoomCode     string
	PlayerName   string
	IsCreator    bool
	Rebound      bool // 同名重连，花名册未变
	Players      []string
	ReadyToStart bool
	Settings     Settings
	GameRunning  bool
}

// RosterUpdate 某个房间花名册变化后的广播内容
type RosterUpdate struct {
	RoomCode     string
	PlayerName   string
	Players      []string
	ReadyToStart bool
	RoomDeleted  bool
}

// Registry 房间注册表
// 房间映射由mu保护，各房间内部状态由房间自己的锁串行化。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	maxPlayers int
	minPlayers int
	defaults   Settings
	retention  time.Duration

	log *zap.Logger
}

// NewRegistry 创建注册表
func NewRegistry(cfg *config.RoomConfig, retention time.Duration) *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		maxPlayers: cfg.MaxPlayers,
		minPlayers: cfg.MinPlayers,
		defaults: Settings{
			TimeLimitSeconds: int(cfg.DefaultTimeLimit.Seconds()),
			Mode:             ModeNormal,
		},
		retention: retention,
		log:       logger.WithModule("registry"),
	}
}

// room 查房间
func (r *Registry) room(code string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, errors.New(errors.ErrRoomNotFound)
	}
	return room, nil
}

// CreateOrJoin 创建或加入房间
// 房间不存在时只有创建者可以开房；同名加入视为重连，只换绑连接。
// 全程持注册表锁，清理和断开路径不会在换锁间隙删掉正在加入的房间。
func (r *Registry) CreateOrJoin(code, name, clientID string, isCreator bool) (*JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		if !isCreator {
			return nil, errors.New(errors.ErrRoomNotFound)
		}
		room = newRoom(code, name, r.defaults)
		r.rooms[code] = room
		logger.LogGameEvent("room_created", code, map[string]interface{}{"creator": name})
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	rebound := false
	if idx := room.findPlayer(name); idx >= 0 {
		// 重连：刷新连接映射，花名册和轮次都不动
		room.roster[idx].ClientID = clientID
		rebound = true
	} else {
		if len(room.roster) >= r.maxPlayers {
			return nil, errors.New(errors.ErrRoomFull)
		}
		room.roster = append(room.roster, RosterEntry{
			Name:     name,
			ClientID: clientID,
			JoinedAt: time.Now(),
		})
	}

	running := room.session != nil && !room.session.Completed()
	result := &JoinResult{
		RoomCode:     code,
		PlayerName:   name,
		IsCreator:    name == room.Creator,
		Rebound:      rebound,
		Players:      room.playerNames(),
		ReadyToStart: len(room.roster) >= r.minPlayers && !running,
		Settings:     room.settings,
		GameRunning:  running,
	}

	logger.LogGameEvent("player_joined", code, map[string]interface{}{
		"player":  name,
		"rebound": rebound,
		"count":   len(room.roster),
	})
	return result, nil
}

// UpdateSettings 修改房间设置，仅创建者可用
func (r *Registry) UpdateSettings(code, requester string, patch SettingsPatch) (Settings, error) {
	room, err := r.room(code)
	if err != nil {
		return Settings{}, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if requester != room.Creator {
		return Settings{}, errors.New(errors.ErrForbidden)
	}

	if patch.TimeLimitSeconds != nil && *patch.TimeLimitSeconds > 0 {
		room.settings.TimeLimitSeconds = *patch.TimeLimitSeconds
	}
	if patch.Mode != nil {
		switch *patch.Mode {
		case ModeNormal, ModeInverted:
			room.settings.Mode = *patch.Mode
		default:
			return Settings{}, errors.New(errors.ErrInvalidParam)
		}
	}

	logger.LogGameEvent("settings_updated", code, map[string]interface{}{
		"time_limit": room.settings.TimeLimitSeconds,
		"mode":       room.settings.Mode,
	})
	return room.settings, nil
}

// RemoveConnection 连接断开，从所有房间的花名册中移除该连接
// 花名册清空且没有会话也没有留存结果的房间随之删除；
// 完赛结果要留到留存期结束，玩家跳去结果页时连接已经断了。
func (r *Registry) RemoveConnection(clientID string) []RosterUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updates []RosterUpdate
	for code, room := range r.rooms {
		room.mu.Lock()

		removed := ""
		for i, e := range room.roster {
			if e.ClientID == clientID {
				removed = e.Name
				room.roster = append(room.roster[:i], room.roster[i+1:]...)
				break
			}
		}
		if removed == "" {
			room.mu.Unlock()
			continue
		}

		running := room.session != nil && !room.session.Completed()
		update := RosterUpdate{
			RoomCode:     code,
			PlayerName:   removed,
			Players:      room.playerNames(),
			ReadyToStart: len(room.roster) >= r.minPlayers && !running,
		}
		if len(room.roster) == 0 && room.session == nil && room.completed == nil {
			update.RoomDeleted = true
			delete(r.rooms, code)
		}
		room.mu.Unlock()

		logger.LogGameEvent("player_left", code, map[string]interface{}{
			"player":  removed,
			"deleted": update.RoomDeleted,
		})
		updates = append(updates, update)
	}
	return updates
}

// ClientsIn 房间内当前连接ID列表，供网关投递
func (r *Registry) ClientsIn(code string) []string {
	room, err := r.room(code)
	if err != nil {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	ids := make([]string, len(room.roster))
	for i, e := range room.roster {
		ids[i] = e.ClientID
	}
	return ids
}

// CleanupExpired 留存期扫描
// 完赛超过留存期的会话释放，顺带删掉空房间。
func (r *Registry) CleanupExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for code, room := range r.rooms {
		room.mu.Lock()
		if room.completed != nil && now.Sub(room.completedAt) > r.retention {
			room.completed = nil
			purged++
		}
		empty := len(room.roster) == 0 && room.session == nil && room.completed == nil
		room.mu.Unlock()

		if empty {
			delete(r.rooms, code)
			logger.LogGameEvent("room_purged", code, nil)
		}
	}
	return purged
}

// StartCleanupTask 启动留存期清理任务
func (r *Registry) StartCleanupTask(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.CleanupExpired(time.Now()); n > 0 {
					r.log.Info("清理过期会话", zap.Int("count", n))
				}
			case <-stop:
				return
			}
		}
	}()
}

// RoomCount 当前房间数
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
