package websocket

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/game"
	"github.com/wfunc/teleprompt/internal/logger"
)

// GameMessageHandler WebSocket游戏消息处理器
// 把上行事件解析成(房间,玩家)后派给注册表或引擎，再把结果按单播/广播投出去。
type GameMessageHandler struct {
	hub      *Hub
	registry *game.Registry
	engine   *game.Engine
	logger   *zap.Logger
}

// NewGameMessageHandler 创建游戏消息处理器
// 引擎的异步推送出口也在这里挂好。
func NewGameMessageHandler(hub *Hub, registry *game.Registry, engine *game.Engine) *GameMessageHandler {
	h := &GameMessageHandler{
		hub:      hub,
		registry: registry,
		engine:   engine,
		logger:   logger.WithModule("websocket"),
	}
	engine.SetPublisher(h.Deliver)
	return h
}

// 确保实现了MessageHandler接口
var _ MessageHandler = (*GameMessageHandler)(nil)

// HandleClientMessage 处理客户端消息
func (h *GameMessageHandler) HandleClientMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Error("解析消息失败",
			zap.String("client_id", client.ID),
			zap.Error(err))
		h.sendError(client, errors.New(errors.ErrMessageFormat))
		client.Close()
		return
	}

	if msg.Type == "" {
		h.sendError(client, errors.New(errors.ErrMessageFormat, "消息类型不能为空"))
		client.Close()
		return
	}

	logger.LogWebSocketMessage("receive", msg.Type, nil)

	switch msg.Type {
	case MessageTypePing:
		h.hub.SendToClient(client.ID, NewMessage(MessageTypePong, map[string]int64{
			"server_time": time.Now().Unix(),
		}))

	case MessageTypePong:
		// 客户端响应心跳

	case MessageTypeJoinRoom:
		h.handleJoinRoom(client, &msg)

	case MessageTypeStartGame:
		h.handleStartGame(client, &msg)

	case MessageTypeUpdateSettings:
		h.handleUpdateSettings(client, &msg)

	case MessageTypeSubmitPrompt, MessageTypeSubmitDrawing:
		h.handleSubmit(client, &msg)

	case MessageTypeTimeoutPrompt, MessageTypeTimeoutDrawing:
		h.handleTimeout(client, &msg)

	case MessageTypeGetGameState:
		h.handleGetGameState(client, &msg)

	default:
		h.logger.Warn("未知消息类型",
			zap.String("client_id", client.ID),
			zap.String("type", msg.Type))
		h.sendError(client, errors.New(errors.ErrMessageFormat, "不支持的消息类型: "+msg.Type))
	}
}

// HandleDisconnect 连接断开，清理所有房间里的该连接并广播
func (h *GameMessageHandler) HandleDisconnect(client *Client) {
	updates := h.registry.RemoveConnection(client.ID)
	for _, u := range updates {
		if u.RoomDeleted {
			continue
		}
		h.hub.BroadcastToRoom(u.RoomCode, NewMessage(MessageTypePlayerLeft, PlayerLeftPayload{
			PlayerName:   u.PlayerName,
			Players:      u.Players,
			ReadyToStart: u.ReadyToStart,
		}))
	}
}

// handleJoinRoom 加入房间
func (h *GameMessageHandler) handleJoinRoom(client *Client, msg *Message) {
	var req JoinRoomRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.RoomCode == "" || req.PlayerName == "" {
		h.sendError(client, errors.New(errors.ErrMessageFormat, "房间码和玩家名不能为空"))
		return
	}

	result, err := h.registry.CreateOrJoin(req.RoomCode, req.PlayerName, client.ID, req.IsCreator)
	if err != nil {
		if errors.Is(err, errors.ErrRoomFull) {
			h.hub.SendToClient(client.ID, NewMessage(MessageTypeRoomFull, ErrorPayload{
				Code:    int(errors.ErrRoomFull),
				Message: "房间已满",
			}))
			return
		}
		h.sendError(client, err)
		return
	}

	client.PlayerName = result.PlayerName
	h.hub.JoinRoom(client, result.RoomCode)

	settings := SettingsPayload{
		TimeLimit: result.Settings.TimeLimitSeconds,
		Mode:      string(result.Settings.Mode),
	}
	h.hub.SendToClient(client.ID, NewMessage(MessageTypeJoinSuccess, JoinSuccessPayload{
		RoomCode:     result.RoomCode,
		PlayerName:   result.PlayerName,
		IsCreator:    result.IsCreator,
		Players:      result.Players,
		ReadyToStart: result.ReadyToStart,
		GameRunning:  result.GameRunning,
		Settings:     settings,
	}))

	if result.Rebound {
		// 重连补发当前局面，不打扰其他人
		if result.GameRunning {
			h.sendState(client, result.RoomCode)
		}
		return
	}

	h.hub.BroadcastToRoom(result.RoomCode, NewMessage(MessageTypePlayerJoined, PlayerJoinedPayload{
		PlayerName:   result.PlayerName,
		Players:      result.Players,
		ReadyToStart: result.ReadyToStart,
	}))
}

// handleStartGame 开局
func (h *GameMessageHandler) handleStartGame(client *Client, msg *Message) {
	var req StartGameRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.sendError(client, errors.New(errors.ErrMessageFormat))
		return
	}

	if err := h.engine.Start(h.roomCode(client, req.RoomCode), client.PlayerName); err != nil {
		h.sendError(client, err)
	}
}

// handleUpdateSettings 修改房间设置
func (h *GameMessageHandler) handleUpdateSettings(client *Client, msg *Message) {
	var req UpdateSettingsRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.sendError(client, errors.New(errors.ErrMessageFormat))
		return
	}

	patch := game.SettingsPatch{TimeLimitSeconds: req.TimeLimit}
	if req.Mode != nil {
		mode := game.GameMode(*req.Mode)
		patch.Mode = &mode
	}

	roomCode := h.roomCode(client, req.RoomCode)
	settings, err := h.registry.UpdateSettings(roomCode, client.PlayerName, patch)
	if err != nil {
		h.sendError(client, err)
		return
	}

	h.hub.BroadcastToRoom(roomCode, NewMessage(MessageTypeSettings, SettingsPayload{
		TimeLimit: settings.TimeLimitSeconds,
		Mode:      string(settings.Mode),
	}))
}

// handleSubmit 提交提示词或涂鸦
func (h *GameMessageHandler) handleSubmit(client *Client, msg *Message) {
	var req SubmitRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.sendError(client, errors.New(errors.ErrMessageFormat))
		return
	}

	input := req.Prompt
	if msg.Type == MessageTypeSubmitDrawing {
		input = req.ImageData
	}
	if input == "" {
		h.sendError(client, errors.New(errors.ErrMessageFormat, "提交内容不能为空"))
		return
	}

	if err := h.engine.Submit(h.roomCode(client, req.RoomCode), client.PlayerName, input); err != nil {
		h.sendError(client, err)
	}
}

// handleTimeout 倒计时耗尽，强推当前回合
func (h *GameMessageHandler) handleTimeout(client *Client, msg *Message) {
	var req TimeoutRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.sendError(client, errors.New(errors.ErrMessageFormat))
		return
	}

	if err := h.engine.Timeout(h.roomCode(client, req.RoomCode)); err != nil {
		// 超时和提交只认先到的那个，落后方静默
		if errors.Is(err, errors.ErrInvalidState) {
			return
		}
		h.sendError(client, err)
	}
}

// handleGetGameState 按需状态快照
func (h *GameMessageHandler) handleGetGameState(client *Client, msg *Message) {
	var req GetGameStateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.sendError(client, errors.New(errors.ErrMessageFormat))
		return
	}
	h.sendState(client, h.roomCode(client, req.RoomCode))
}

// sendState 给单个连接补发状态
func (h *GameMessageHandler) sendState(client *Client, roomCode string) {
	snapshot, err := h.engine.GetState(roomCode, client.PlayerName)
	if err != nil {
		h.sendError(client, err)
		return
	}

	event := game.EventGameState
	if snapshot.Mode == game.ModeInverted {
		event = game.EventGameStateInv
	}
	h.hub.SendToClient(client.ID, NewMessage(event, snapshot))
}

// Deliver 引擎推送的出口，按投递单单播或房间广播
func (h *GameMessageHandler) Deliver(push game.PushMessage) {
	msg := NewMessage(push.Event, push.Payload)
	logger.LogWebSocketMessage("send", push.Event, nil)

	if len(push.Targets) == 0 {
		if err := h.hub.BroadcastToRoom(push.RoomCode, msg); err != nil {
			h.logger.Warn("房间广播失败",
				zap.String("room_code", push.RoomCode),
				zap.String("event", push.Event),
				zap.Error(err))
		}
		return
	}
	for _, target := range push.Targets {
		h.hub.SendToClient(target, msg)
	}
}

// roomCode 请求里没带房间码时退回连接自己的房间
func (h *GameMessageHandler) roomCode(client *Client, requested string) string {
	if requested != "" {
		return requested
	}
	return client.RoomCode
}

// sendError 错误只告诉出事的连接
func (h *GameMessageHandler) sendError(client *Client, err error) {
	code := errors.GetCode(err)
	msg := err.Error()
	if appErr, ok := err.(*errors.AppError); ok {
		msg = appErr.Message
	}
	h.hub.SendToClient(client.ID, NewMessage(MessageTypeError, ErrorPayload{
		Code:    int(code),
		Message: msg,
	}))
}
