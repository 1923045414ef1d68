package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/game"
	"github.com/wfunc/teleprompt/internal/models"
	"github.com/wfunc/teleprompt/internal/websocket"
)

// stubArtifacts 即时返回的生成服务替身
type stubArtifacts struct{}

func (stubArtifacts) GenerateImage(_ context.Context, _ game.ArtifactMeta, prompt string) (string, error) {
	return "/static/generated/" + prompt + ".png", nil
}

func (stubArtifacts) DescribeImage(_ context.Context, imageRef string) (string, error) {
	return "描述了" + imageRef, nil
}

func (stubArtifacts) SaveDrawing(_ context.Context, _ game.ArtifactMeta, _ string) (string, error) {
	return "/static/generated/drawing.png", nil
}

func (stubArtifacts) StockImage(_ context.Context, _ game.ArtifactMeta) (string, error) {
	return "/static/img/stock.png", nil
}

func setupTestRouter(t *testing.T) (*Router, *game.Registry, *game.Engine) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ArtifactRecord{}))

	registry := game.NewRegistry(&config.RoomConfig{
		MaxPlayers:       8,
		MinPlayers:       2,
		DefaultTimeLimit: 20 * time.Second,
	}, time.Hour)
	engine := game.NewEngine(registry, stubArtifacts{}, time.Second)
	hub := websocket.NewHub(zap.NewNop())

	cfg := &config.Config{}
	cfg.Server.Mode = gin.TestMode
	router := NewRouter(cfg, db, registry, engine, hub, zap.NewNop())
	return router, registry, engine
}

func doRequest(router *Router, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.GetEngine().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestGetRoom(t *testing.T) {
	router, registry, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/rooms/NOPE")
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := registry.CreateOrJoin("ABCD", "A", "conn-a", true)
	require.NoError(t, err)

	w = doRequest(router, http.MethodGet, "/api/v1/rooms/ABCD")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["players"])
}

func TestGetResults(t *testing.T) {
	router, registry, engine := setupTestRouter(t)

	registry.CreateOrJoin("ABCD", "A", "conn-a", true)
	registry.CreateOrJoin("ABCD", "B", "conn-b", false)
	require.NoError(t, engine.Start("ABCD", "A"))

	// 未完赛时没有结果
	w := doRequest(router, http.MethodGet, "/api/v1/rooms/ABCD/results")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, engine.Timeout("ABCD"))
	require.NoError(t, engine.Timeout("ABCD"))

	w = doRequest(router, http.MethodGet, "/api/v1/rooms/ABCD/results")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                      `json:"success"`
		Result  game.GameCompletedPayload `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Result.Artifacts, 3)
	assert.Equal(t, []string{"A", "B"}, body.Result.Players)
}

func TestGetGameState(t *testing.T) {
	router, registry, engine := setupTestRouter(t)

	registry.CreateOrJoin("ABCD", "A", "conn-a", true)
	registry.CreateOrJoin("ABCD", "B", "conn-b", false)
	require.NoError(t, engine.Start("ABCD", "A"))

	w := doRequest(router, http.MethodGet, "/api/v1/rooms/ABCD/state?player=A")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		State game.StateSnapshot `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.State.YourTurn)
	assert.Equal(t, "A", body.State.CurrentPlayer)
}

func TestNotFoundRoute(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	w := doRequest(router, http.MethodGet, "/no/such/route")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
