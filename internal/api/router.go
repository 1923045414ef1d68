package api

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/game"
	"github.com/wfunc/teleprompt/internal/websocket"
)

// Router API路由器
type Router struct {
	engine    *gin.Engine
	db        *gorm.DB
	registry  *game.Registry
	gameEng   *game.Engine
	wsHandler *WSHandler
	log       *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, db *gorm.DB, registry *game.Registry, gameEng *game.Engine, hub *websocket.Hub, log *zap.Logger) *Router {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	router := &Router{
		engine:    engine,
		db:        db,
		registry:  registry,
		gameEng:   gameEng,
		wsHandler: NewWSHandler(&cfg.WebSocket, hub),
		log:       log,
	}

	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 页面，模板目录不存在时只提供API和WebSocket
	if pages, _ := filepath.Glob("web/templates/*.html"); len(pages) > 0 {
		r.engine.LoadHTMLGlob("web/templates/*.html")
		r.engine.GET("/", r.lobbyPage)
		r.engine.GET("/game/:code", r.gamePage)
		r.engine.GET("/results/:code", r.resultsPage)
	}

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		rooms := v1.Group("/rooms")
		{
			rooms.GET("/:code", r.getRoom)
			rooms.GET("/:code/state", r.getGameState)
			rooms.GET("/:code/results", r.getResults)
		}
		v1.GET("/stats", r.getStats)
	}

	// WebSocket路由
	r.engine.GET("/ws", r.wsHandler.Serve)

	// 静态文件服务
	r.engine.Static("/static", "./web/static")

	// Swagger文档（仅 -tags swagger 构建启用）
	registerSwaggerRoutes(r.engine)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// lobbyPage 大厅页：建房或加入
func (r *Router) lobbyPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{})
}

// gamePage 游戏页
func (r *Router) gamePage(c *gin.Context) {
	c.HTML(http.StatusOK, "game.html", gin.H{
		"RoomCode":   c.Param("code"),
		"PlayerName": c.Query("player"),
		"IsCreator":  c.Query("creator") == "1",
	})
}

// resultsPage 结果页
func (r *Router) resultsPage(c *gin.Context) {
	code := c.Param("code")
	result, err := r.gameEng.Results(code)
	if err != nil {
		c.HTML(http.StatusNotFound, "results.html", gin.H{
			"RoomCode": code,
			"NotFound": true,
		})
		return
	}
	c.HTML(http.StatusOK, "results.html", gin.H{
		"RoomCode": code,
		"Result":   result,
		"Inverted": result.Mode == game.ModeInverted,
	})
}

// getRoom 房间信息
// @Summary 查询房间
// @Param code path string true "房间码"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/rooms/{code} [get]
func (r *Router) getRoom(c *gin.Context) {
	code := c.Param("code")
	clients := r.registry.ClientsIn(code)
	if clients == nil {
		r.abortWithError(c, errors.New(errors.ErrRoomNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"room_code": code,
		"players":   len(clients),
	})
}

// getGameState 游戏状态快照
// @Summary 查询游戏状态
// @Param code path string true "房间码"
// @Param player query string false "玩家名"
// @Success 200 {object} game.StateSnapshot
// @Router /api/v1/rooms/{code}/state [get]
func (r *Router) getGameState(c *gin.Context) {
	snapshot, err := r.gameEng.GetState(c.Param("code"), c.Query("player"))
	if err != nil {
		r.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "state": snapshot})
}

// getResults 完赛结果
// @Summary 查询完赛结果
// @Param code path string true "房间码"
// @Success 200 {object} game.GameCompletedPayload
// @Router /api/v1/rooms/{code}/results [get]
func (r *Router) getResults(c *gin.Context) {
	result, err := r.gameEng.Results(c.Param("code"))
	if err != nil {
		r.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// getStats 运行统计
func (r *Router) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rooms":   r.registry.RoomCount(),
		"online":  r.wsHandler.hub.GetOnlineCount(),
	})
}

// abortWithError 统一错误响应
func (r *Router) abortWithError(c *gin.Context, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr))
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("启动HTTP服务", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
