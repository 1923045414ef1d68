package game

// 引擎产生的事件名，网关原样作为消息类型下发
const (
	EventGameStarted     = "game_started"
	EventImageGenerating = "image_generating"
	EventImageProcessing = "image_processing"
	EventNextTurn        = "next_turn"
	EventNextTurnInv     = "next_turn_inverted"
	EventGameCompleted   = "game_completed"
	EventGameState       = "game_state"
	EventGameStateInv    = "game_state_inverted"
)

// PushMessage 引擎推送给网关的投递单
// Targets为空表示广播给房间内所有连接。
type PushMessage struct {
	RoomCode string
	Event    string
	Payload  interface{}
	Targets  []string
}

// GameStartedPayload 开局广播
type GameStartedPayload struct {
	GameID        string   `json:"game_id"`
	Players       []string `json:"players"`
	CurrentPlayer string   `json:"current_player"`
	Mode          GameMode `json:"mode"`
	Seed          string   `json:"seed"` // 正常模式为种子图片路径，反转模式为起始指令
	TimeLimit     int      `json:"time_limit"`
}

// GeneratingPayload 回合提交后的生成中广播
type GeneratingPayload struct {
	Player string `json:"player"`
	Round  int    `json:"round"`
}

// NextTurnPayload 轮到下一位玩家
// Image与Description按模式二选一。
type NextTurnPayload struct {
	CurrentPlayer string `json:"current_player"`
	Round         int    `json:"round"`
	Image         string `json:"image,omitempty"`
	Description   string `json:"description,omitempty"`
	TimeLimit     int    `json:"time_limit"`
}

// GameCompletedPayload 完赛广播，携带完整历史
type GameCompletedPayload struct {
	GameID      string      `json:"game_id"`
	Mode        GameMode    `json:"mode"`
	Players     []string    `json:"players"`
	TextEntries []TextEntry `json:"text_entries"`
	Artifacts   []Artifact  `json:"artifacts"`
}

// StateSnapshot 按需状态快照，重连补发用
type StateSnapshot struct {
	GameID        string     `json:"game_id"`
	Mode          GameMode   `json:"mode"`
	Status        GameStatus `json:"status"`
	CurrentPlayer string     `json:"current_player"`
	Round         int        `json:"round"`
	Players       []string   `json:"players"`
	Image         string     `json:"image,omitempty"`
	Description   string     `json:"description,omitempty"`
	YourTurn      bool       `json:"is_your_turn"`
	TimeLimit     int        `json:"time_limit"`
}
