package game

import (
	"time"

	"github.com/google/uuid"
)

// GameMode 游戏模式
type GameMode string

const (
	ModeNormal   GameMode = "normal"   // 文字提示 -> 生成图片
	ModeInverted GameMode = "inverted" // 涂鸦 -> 生成描述
)

// GameStatus 会话状态
type GameStatus string

const (
	StatusAwaitingInput GameStatus = "awaiting_input" // 等待当前玩家提交
	StatusGenerating    GameStatus = "generating"     // 生成服务调用中
	StatusCompleted     GameStatus = "completed"      // 已结束
)

// ArtifactKind 产物类型
type ArtifactKind string

const (
	ArtifactImage ArtifactKind = "image" // 图片路径
	ArtifactText  ArtifactKind = "text"  // 文字描述
)

// PlayerRef 玩家引用（开局时的花名册快照）
type PlayerRef struct {
	Name     string `json:"name"`
	ClientID string `json:"-"`
}

// TextEntry 文字历史条目（提示词或描述）
type TextEntry struct {
	Author string `json:"player"`
	Round  int    `json:"round"`
	Text   string `json:"text"`
}

// Artifact 产物历史条目（生成图片、涂鸦或描述）
// 种子产物没有作者。
type Artifact struct {
	Author string       `json:"player,omitempty"`
	Round  int          `json:"round"`
	Kind   ArtifactKind `json:"kind"`
	Ref    string       `json:"ref"` // 图片为磁盘路径，描述为文本本身
}

// genFence 在途生成调用的围栏标记
// 提交时记录当时的回合与轮次，迟到的生成结果据此丢弃。
type genFence struct {
	sessionID string
	round     int
	turnIndex int
}

// GameSession 一局游戏
// 字段只由Engine在持有房间锁时读写。
type GameSession struct {
	ID          string      `json:"id"`
	Mode        GameMode    `json:"mode"`
	Players     []PlayerRef `json:"players"`
	Round       int         `json:"round"`
	TurnIndex   int         `json:"turn_index"`
	Status      GameStatus  `json:"status"`
	TextEntries []TextEntry `json:"text_entries"`
	Artifacts   []Artifact  `json:"artifacts"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`

	pending *genFence
}

// NewGameSession 从花名册快照开一局
func NewGameSession(mode GameMode, roster []PlayerRef) *GameSession {
	players := make([]PlayerRef, len(roster))
	copy(players, roster)

	return &GameSession{
		ID:        uuid.New().String(),
		Mode:      mode,
		Players:   players,
		Round:     0,
		TurnIndex: 0,
		Status:    StatusAwaitingInput,
		StartedAt: time.Now(),
	}
}

// CurrentPlayer 当前轮到的玩家
func (s *GameSession) CurrentPlayer() PlayerRef {
	return s.Players[s.TurnIndex]
}

// Completed 会话是否已结束
func (s *GameSession) Completed() bool {
	return s.Status == StatusCompleted
}

// advance 推进回合，回合数到达玩家数即完赛
func (s *GameSession) advance() {
	s.TurnIndex = (s.TurnIndex + 1) % len(s.Players)
	s.Round++
	s.pending = nil

	if s.Round >= len(s.Players) {
		s.Status = StatusCompleted
		s.CompletedAt = time.Now()
	} else {
		s.Status = StatusAwaitingInput
	}
}

// beginGeneration 进入生成状态并记录围栏
func (s *GameSession) beginGeneration() genFence {
	s.Status = StatusGenerating
	fence := genFence{
		sessionID: s.ID,
		round:     s.Round,
		turnIndex: s.TurnIndex,
	}
	s.pending = &fence
	return fence
}

// matchesFence 生成结果是否对应当前在途回合
func (s *GameSession) matchesFence(f genFence) bool {
	return s.pending != nil &&
		s.Status == StatusGenerating &&
		s.pending.sessionID == f.sessionID &&
		s.pending.round == f.round &&
		s.pending.turnIndex == f.turnIndex
}

// lastArtifact 最近一次产物
func (s *GameSession) lastArtifact() *Artifact {
	if len(s.Artifacts) == 0 {
		return nil
	}
	return &s.Artifacts[len(s.Artifacts)-1]
}

// lastText 最近一次文字条目
func (s *GameSession) lastText() *TextEntry {
	if len(s.TextEntries) == 0 {
		return nil
	}
	return &s.TextEntries[len(s.TextEntries)-1]
}

// PlayerNames 玩家名列表（按出场顺序）
func (s *GameSession) PlayerNames() []string {
	names := make([]string, len(s.Players))
	for i, p := range s.Players {
		names[i] = p.Name
	}
	return names
}
