package generator

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/logger"
	"github.com/wfunc/teleprompt/internal/models"
	"github.com/wfunc/teleprompt/internal/repository"
)

// 生成图片对外暴露的URL前缀，磁盘目录映射到这里由路由层静态托管
const (
	generatedURLPrefix = "/static/generated/"
	stockURLPrefix     = "/static/img/"
)

// Store 生成图片落盘与记录
// 每张写进输出目录的图片都留一行数据库记录，供到期清理。
type Store struct {
	outputDir string
	repo      repository.ArtifactRepository
	retention time.Duration
	log       *zap.Logger
}

// NewStore 创建图片落盘器，输出目录不存在则建出来
func NewStore(outputDir string, repo repository.ArtifactRepository, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "创建输出目录失败")
	}
	return &Store{
		outputDir: outputDir,
		repo:      repo,
		retention: retention,
		log:       logger.WithModule("generator"),
	}, nil
}

// SaveMeta 落盘归属信息
type SaveMeta struct {
	RoomCode  string
	SessionID string
	Author    string
	Round     int
	Kind      string // image / drawing
	Source    string // generated / stock / upload
}

// Save 写入图片并记录，返回对外URL路径
func (s *Store) Save(ctx context.Context, meta SaveMeta, data []byte) (string, error) {
	name := uuid.New().String() + ".png"
	diskPath := filepath.Join(s.outputDir, name)

	if err := os.WriteFile(diskPath, data, 0644); err != nil {
		return "", errors.Wrap(err, errors.ErrGenerationFailed, "图片写盘失败")
	}

	s.record(ctx, meta, name, diskPath)
	return generatedURLPrefix + name, nil
}

// record 数据库记录失败不影响游戏，文件已经在盘上了
func (s *Store) record(ctx context.Context, meta SaveMeta, name, diskPath string) {
	err := s.repo.Create(ctx, &models.ArtifactRecord{
		ArtifactID: strings.TrimSuffix(name, ".png"),
		RoomCode:   meta.RoomCode,
		SessionID:  meta.SessionID,
		Author:     meta.Author,
		Round:      meta.Round,
		Kind:       meta.Kind,
		Path:       diskPath,
		Source:     meta.Source,
		ExpiresAt:  time.Now().Add(s.retention),
	})
	if err != nil {
		s.log.Warn("图片记录写入失败",
			zap.String("path", diskPath),
			zap.Error(err))
	}
}

// DiskPath 把对外URL换算回磁盘路径
func (s *Store) DiskPath(webPath string) (string, error) {
	name := strings.TrimPrefix(webPath, generatedURLPrefix)
	if name == webPath || name == "" || strings.ContainsAny(name, "/\\") {
		return "", errors.New(errors.ErrInvalidParam, "非法图片路径")
	}
	return filepath.Join(s.outputDir, name), nil
}

// LoadDataURL 读回图片并编码为dataURL，给视觉接口用
func (s *Store) LoadDataURL(webPath string) (string, error) {
	diskPath, err := s.DiskPath(webPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(diskPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrNotFound, "图片读取失败")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDataURL 解出dataURL里的图片字节
func DecodeDataURL(imageData string) ([]byte, error) {
	idx := strings.Index(imageData, ",")
	if idx < 0 || !strings.HasPrefix(imageData, "data:image/") {
		return nil, errors.New(errors.ErrInvalidParam, "涂鸦数据格式错误")
	}
	data, err := base64.StdEncoding.DecodeString(imageData[idx+1:])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidParam, "涂鸦数据解码失败")
	}
	if len(data) == 0 {
		return nil, errors.New(errors.ErrInvalidParam, "涂鸦数据为空")
	}
	return data, nil
}

// Cleanup 删除过保留期的图片和记录
func (s *Store) Cleanup(ctx context.Context, now time.Time) int {
	records, err := s.repo.FindExpired(ctx, now, 100)
	if err != nil {
		s.log.Error("过期记录查询失败", zap.Error(err))
		return 0
	}

	purged := 0
	for _, r := range records {
		// 库存素材只删记录不删文件
		if r.Source != "stock" {
			if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
				s.log.Warn("过期图片删除失败",
					zap.String("path", r.Path),
					zap.Error(err))
				continue
			}
		}
		if err := s.repo.Delete(ctx, r.ID); err != nil {
			s.log.Warn("过期记录删除失败", zap.Uint("id", r.ID), zap.Error(err))
			continue
		}
		purged++
	}
	return purged
}

// StartCleanupTask 启动到期清理任务
func (s *Store) StartCleanupTask(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if n := s.Cleanup(ctx, time.Now()); n > 0 {
					s.log.Info("清理过期图片", zap.Int("count", n))
				}
				cancel()
			case <-stop:
				return
			}
		}
	}()
}
