package game

import (
	"sync"
	"time"
)

// Settings 房间可调设置
type Settings struct {
	TimeLimitSeconds int      `json:"time_limit"`
	Mode             GameMode `json:"mode"`
}

// SettingsPatch 设置的增量更新，nil字段保持原值
type SettingsPatch struct {
	TimeLimitSeconds *int      `json:"time_limit,omitempty"`
	Mode             *GameMode `json:"mode,omitempty"`
}

// RosterEntry 在线玩家
type RosterEntry struct {
	Name     string
	ClientID string
	JoinedAt time.Time
}

// Room 房间
// mu串行化房间内一切读写，注册表和引擎都经由它。
type Room struct {
	mu sync.Mutex

	Code      string
	Creator   string
	CreatedAt time.Time

	roster   []RosterEntry
	settings Settings

	session     *GameSession // 进行中的一局
	completed   *GameSession // 留存的上一局结果
	completedAt time.Time
}

func newRoom(code, creator string, defaults Settings) *Room {
	return &Room{
		Code:      code,
		Creator:   creator,
		CreatedAt: time.Now(),
		settings:  defaults,
	}
}

// Settings 当前设置快照，内部自行加锁
func (r *Room) Settings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// findPlayer 按名字查花名册，须持锁
func (r *Room) findPlayer(name string) int {
	for i, e := range r.roster {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// playerNames 花名册名字列表，须持锁
func (r *Room) playerNames() []string {
	names := make([]string, len(r.roster))
	for i, e := range r.roster {
		names[i] = e.Name
	}
	return names
}

// rosterSnapshot 花名册快照，须持锁
func (r *Room) rosterSnapshot() []PlayerRef {
	refs := make([]PlayerRef, len(r.roster))
	for i, e := range r.roster {
		refs[i] = PlayerRef{Name: e.Name, ClientID: e.ClientID}
	}
	return refs
}

// CompletedSession 留存的上一局，没有则返回nil
func (r *Room) CompletedSession() *GameSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}
