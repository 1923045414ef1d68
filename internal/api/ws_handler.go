package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/logger"
	"github.com/wfunc/teleprompt/internal/websocket"
)

// WSHandler WebSocket升级入口
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	log      *zap.Logger
}

// NewWSHandler 创建WebSocket处理器
func NewWSHandler(cfg *config.WebSocketConfig, hub *websocket.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			// 房间码就是口令，不做跨域限制
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.WithModule("websocket"),
	}
}

// Serve 升级连接并启动读写泵
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("WebSocket升级失败",
			zap.String("remote", c.ClientIP()),
			zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
