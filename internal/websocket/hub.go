package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrRoomEmpty      = errors.New("房间内没有连接")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
)

// MessageHandler 消息处理器接口
type MessageHandler interface {
	// HandleClientMessage 处理一条客户端消息
	HandleClientMessage(client *Client, data []byte)
	// HandleDisconnect 连接断开后的收尾
	HandleDisconnect(client *Client)
}

// Hub WebSocket连接管理中心
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 房间码到客户端的映射
	roomClients map[string]map[string]*Client
	roomMu      sync.RWMutex

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 消息处理器
	messageHandler MessageHandler

	logger *zap.Logger
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		roomClients: make(map[string]map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger,
	}
}

// SetMessageHandler 挂载消息处理器，必须在Run之前调用
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.messageHandler = handler
}

// Run 运行Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID))

	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	}
	h.SendToClient(client.ID, msg)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()
	if !ok {
		return
	}

	h.LeaveRoom(client)

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("room_code", client.RoomCode),
		zap.String("player", client.PlayerName))

	if h.messageHandler != nil {
		h.messageHandler.HandleDisconnect(client)
	}
}

// JoinRoom 把客户端挂进房间索引
func (h *Hub) JoinRoom(client *Client, roomCode string) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	// 换房先摘旧索引
	if client.RoomCode != "" && client.RoomCode != roomCode {
		if members, ok := h.roomClients[client.RoomCode]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.roomClients, client.RoomCode)
			}
		}
	}

	members, ok := h.roomClients[roomCode]
	if !ok {
		members = make(map[string]*Client)
		h.roomClients[roomCode] = members
	}
	members[client.ID] = client
	client.RoomCode = roomCode
}

// LeaveRoom 从房间索引里摘掉客户端
func (h *Hub) LeaveRoom(client *Client) {
	if client.RoomCode == "" {
		return
	}

	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	if members, ok := h.roomClients[client.RoomCode]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.roomClients, client.RoomCode)
		}
	}
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	// 发送持clientsMu进行，注销关通道在同一把锁的写侧，两者不会交错
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// BroadcastToRoom 广播消息给房间内所有连接
func (h *Hub) BroadcastToRoom(roomCode string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.roomMu.RLock()
	members := h.roomClients[roomCode]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	h.roomMu.RUnlock()

	if len(ids) == 0 {
		return ErrRoomEmpty
	}

	// 发送持clientsMu进行，由同一把锁串行化注销时的close，
	// 断开瞬间的广播不会写到已关闭的通道
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for _, id := range ids {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.String("room_code", roomCode))
		}
	}
	return nil
}

// RoomCount 有连接的房间数
func (h *Hub) RoomCount() int {
	h.roomMu.RLock()
	defer h.roomMu.RUnlock()
	return len(h.roomClients)
}

// GetOnlineCount 在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Register 注册客户端（公开方法）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
