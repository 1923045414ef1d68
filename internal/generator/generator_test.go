package generator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/models"
)

// memRepo 内存版记录仓储
type memRepo struct {
	records []*models.ArtifactRecord
	nextID  uint
}

func (m *memRepo) Create(_ context.Context, r *models.ArtifactRecord) error {
	m.nextID++
	r.ID = m.nextID
	m.records = append(m.records, r)
	return nil
}

func (m *memRepo) FindByArtifactID(_ context.Context, id string) (*models.ArtifactRecord, error) {
	for _, r := range m.records {
		if r.ArtifactID == id {
			return r, nil
		}
	}
	return nil, errors.New(errors.ErrNotFound)
}

func (m *memRepo) FindByRoomCode(_ context.Context, code string) ([]*models.ArtifactRecord, error) {
	var out []*models.ArtifactRecord
	for _, r := range m.records {
		if r.RoomCode == code {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) FindExpired(_ context.Context, now time.Time, _ int) ([]*models.ArtifactRecord, error) {
	var out []*models.ArtifactRecord
	for _, r := range m.records {
		if !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) Delete(_ context.Context, id uint) error {
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memRepo) ExtendExpiry(_ context.Context, sessionID string, expiresAt time.Time) error {
	for _, r := range m.records {
		if r.SessionID == sessionID {
			r.ExpiresAt = expiresAt
		}
	}
	return nil
}

func TestImageClientGenerate(t *testing.T) {
	fakeImage := []byte("\x89PNG fake image bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req imageRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "一只猫", req.Inputs)
		assert.Equal(t, 20, req.Parameters.NumInferenceSteps)

		w.Write(fakeImage)
	}))
	defer server.Close()

	client := NewImageClient(&config.ImageGeneratorConfig{
		Endpoint:       server.URL,
		Token:          "test-token",
		InferenceSteps: 20,
		GuidanceScale:  7.5,
	})

	data, err := client.Generate(context.Background(), "一只猫")
	require.NoError(t, err)
	assert.Equal(t, fakeImage, data)
}

func TestImageClientFailures(t *testing.T) {
	t.Run("缺少令牌", func(t *testing.T) {
		client := NewImageClient(&config.ImageGeneratorConfig{Endpoint: "http://x"})
		_, err := client.Generate(context.Background(), "猫")
		require.Error(t, err)
		assert.Equal(t, errors.ErrGenerationUnavailable, errors.GetCode(err))
	})

	t.Run("后端返回503", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"model loading"}`))
		}))
		defer server.Close()

		client := NewImageClient(&config.ImageGeneratorConfig{
			Endpoint: server.URL,
			Token:    "t",
		})
		_, err := client.Generate(context.Background(), "猫")
		require.Error(t, err)
		assert.Equal(t, errors.ErrGenerationFailed, errors.GetCode(err))
	})
}

func TestVisionClientDescribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.True(t, strings.HasPrefix(req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "  一只戴帽子的猫在跳舞  "}},
			},
		})
	}))
	defer server.Close()

	client := NewVisionClient(&config.VisionGeneratorConfig{
		Endpoint:  server.URL,
		Token:     "t",
		Model:     "gpt-4o",
		MaxTokens: 500,
	})

	text, err := client.Describe(context.Background(), "data:image/png;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, "一只戴帽子的猫在跳舞", text, "描述应去掉首尾空白")
}

func TestVisionClientErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "rate limited"},
		})
	}))
	defer server.Close()

	client := NewVisionClient(&config.VisionGeneratorConfig{Endpoint: server.URL, Token: "t"})
	_, err := client.Describe(context.Background(), "data:image/png;base64,aGk=")
	require.Error(t, err)
	assert.Equal(t, errors.ErrGenerationFailed, errors.GetCode(err))
}

func TestStoreSaveAndLoad(t *testing.T) {
	repo := &memRepo{}
	store, err := NewStore(t.TempDir(), repo, time.Hour)
	require.NoError(t, err)

	meta := SaveMeta{
		RoomCode: "ABCD", SessionID: "s1", Author: "A",
		Round: 0, Kind: "drawing", Source: "upload",
	}
	webPath, err := store.Save(context.Background(), meta, []byte("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(webPath, generatedURLPrefix))

	// 落盘与记录都在
	diskPath, err := store.DiskPath(webPath)
	require.NoError(t, err)
	data, err := os.ReadFile(diskPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	require.Len(t, repo.records, 1)
	assert.Equal(t, "ABCD", repo.records[0].RoomCode)

	// 读回成dataURL
	dataURL, err := store.LoadDataURL(webPath)
	require.NoError(t, err)
	assert.Equal(t,
		"data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		dataURL)

	// 路径穿越拒绝
	_, err = store.DiskPath("/static/generated/../secret.png")
	assert.Error(t, err)
	_, err = store.DiskPath("/etc/passwd")
	assert.Error(t, err)
}

func TestStoreCleanup(t *testing.T) {
	repo := &memRepo{}
	dir := t.TempDir()
	store, err := NewStore(dir, repo, -time.Minute) // 已过期
	require.NoError(t, err)

	webPath, err := store.Save(context.Background(), SaveMeta{
		RoomCode: "ABCD", Kind: "image", Source: "generated",
	}, []byte("x"))
	require.NoError(t, err)
	diskPath, _ := store.DiskPath(webPath)

	// 库存素材只删记录不删文件
	stockFile := filepath.Join(dir, "keep.png")
	require.NoError(t, os.WriteFile(stockFile, []byte("y"), 0644))
	repo.Create(context.Background(), &models.ArtifactRecord{
		ArtifactID: "keep", Path: stockFile, Source: "stock",
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	purged := store.Cleanup(context.Background(), time.Now())
	assert.Equal(t, 2, purged)
	assert.Empty(t, repo.records)

	_, err = os.Stat(diskPath)
	assert.True(t, os.IsNotExist(err), "生成图片应被删除")
	_, err = os.Stat(stockFile)
	assert.NoError(t, err, "库存文件应保留")
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "合法PNG", input: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hi"))},
		{name: "缺少前缀", input: base64.StdEncoding.EncodeToString([]byte("hi")), wantErr: true},
		{name: "非图片类型", input: "data:text/plain;base64,aGk=", wantErr: true},
		{name: "编码损坏", input: "data:image/png;base64,%%%%", wantErr: true},
		{name: "内容为空", input: "data:image/png;base64,", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := DecodeDataURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, data)
			}
		})
	}
}

func TestStockPicker(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.jpg", "readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	picker, err := NewStockPicker(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, picker.Count(), "非图片文件应被忽略")

	ref, err := picker.Pick()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, stockURLPrefix))

	// 空目录直接报错
	_, err = NewStockPicker(t.TempDir())
	assert.Error(t, err)
}
