package websocket

import (
	"encoding/json"
	"time"
)

// Message WebSocket消息信封
type Message struct {
	Type      string          `json:"type"`      // 消息类型
	Data      json.RawMessage `json:"data"`      // 消息数据
	Timestamp int64           `json:"timestamp"` // 时间戳
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"

	// 客户端上行
	MessageTypeJoinRoom       = "join_room"
	MessageTypeStartGame      = "start_game"
	MessageTypeUpdateSettings = "update_settings"
	MessageTypeSubmitPrompt   = "submit_prompt"
	MessageTypeSubmitDrawing  = "submit_drawing"
	MessageTypeTimeoutPrompt  = "timeout_prompt"
	MessageTypeTimeoutDrawing = "timeout_drawing"
	MessageTypeGetGameState   = "get_game_state"

	// 服务端下行（房间广播）
	MessageTypePlayerJoined = "player_joined"
	MessageTypePlayerLeft   = "player_left"
	MessageTypeRoomFull     = "room_full"
	MessageTypeSettings     = "settings_updated"

	// 服务端下行（仅发起连接）
	MessageTypeJoinSuccess = "join_success"
)

// NewMessage 组装一条下行消息，data序列化失败时退化成错误消息
func NewMessage(msgType string, data interface{}) *Message {
	raw, err := json.Marshal(data)
	if err != nil {
		return &Message{
			Type:      MessageTypeError,
			Data:      json.RawMessage(`{"message":"内部错误"}`),
			Timestamp: time.Now().Unix(),
		}
	}
	return &Message{
		Type:      msgType,
		Data:      raw,
		Timestamp: time.Now().Unix(),
	}
}

// JoinRoomRequest 加入房间
type JoinRoomRequest struct {
	RoomCode   string `json:"room_code"`
	PlayerName string `json:"player_name"`
	IsCreator  bool   `json:"is_creator"`
}

// StartGameRequest 开局
type StartGameRequest struct {
	RoomCode string `json:"room_code"`
}

// UpdateSettingsRequest 修改房间设置
type UpdateSettingsRequest struct {
	RoomCode  string  `json:"room_code"`
	TimeLimit *int    `json:"time_limit,omitempty"`
	Mode      *string `json:"mode,omitempty"`
}

// SubmitRequest 提交提示词或涂鸦
type SubmitRequest struct {
	RoomCode string `json:"room_code"`
	Prompt   string `json:"prompt,omitempty"`
	// 涂鸦dataURL，submit_drawing时使用
	ImageData string `json:"image_data,omitempty"`
}

// TimeoutRequest 倒计时耗尽
type TimeoutRequest struct {
	RoomCode string `json:"room_code"`
}

// GetGameStateRequest 请求状态快照
type GetGameStateRequest struct {
	RoomCode string `json:"room_code"`
}

// JoinSuccessPayload 加入成功的个人确认
type JoinSuccessPayload struct {
	RoomCode     string          `json:"room_code"`
	PlayerName   string          `json:"player_name"`
	IsCreator    bool            `json:"is_creator"`
	Players      []string        `json:"players"`
	ReadyToStart bool            `json:"ready_to_start"`
	GameRunning  bool            `json:"game_running"`
	Settings     SettingsPayload `json:"settings"`
}

// PlayerJoinedPayload 有人加入的房间广播
type PlayerJoinedPayload struct {
	PlayerName   string   `json:"player_name"`
	Players      []string `json:"players"`
	ReadyToStart bool     `json:"ready_to_start"`
}

// PlayerLeftPayload 有人离开的房间广播
type PlayerLeftPayload struct {
	PlayerName   string   `json:"player_name"`
	Players      []string `json:"players"`
	ReadyToStart bool     `json:"ready_to_start"`
}

// SettingsPayload 设置快照
type SettingsPayload struct {
	TimeLimit int    `json:"time_limit"`
	Mode      string `json:"mode"`
}

// ErrorPayload 错误下行
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
