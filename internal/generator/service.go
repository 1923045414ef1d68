package generator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/game"
	"github.com/wfunc/teleprompt/internal/logger"
	"github.com/wfunc/teleprompt/internal/repository"
)

// Service 产物生成服务
// 把文生图、图生文、涂鸦落盘和兜底素材拼成引擎需要的一个口。
type Service struct {
	image  *ImageClient
	vision *VisionClient
	store  *Store
	stock  *StockPicker
	log    *zap.Logger
}

// 引擎只认game.ArtifactService这个口
var _ game.ArtifactService = (*Service)(nil)

// NewService 创建生成服务
func NewService(cfg *config.GeneratorConfig, repo repository.ArtifactRepository, retention time.Duration) (*Service, error) {
	store, err := NewStore(cfg.OutputDir, repo, retention)
	if err != nil {
		return nil, err
	}
	stock, err := NewStockPicker(cfg.StockDir)
	if err != nil {
		return nil, err
	}
	return &Service{
		image:  NewImageClient(&cfg.Image),
		vision: NewVisionClient(&cfg.Vision),
		store:  store,
		stock:  stock,
		log:    logger.WithModule("generator"),
	}, nil
}

// GenerateImage 按提示词生成图片并落盘
func (s *Service) GenerateImage(ctx context.Context, meta game.ArtifactMeta, prompt string) (string, error) {
	data, err := s.image.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return s.store.Save(ctx, SaveMeta{
		RoomCode:  meta.RoomCode,
		SessionID: meta.SessionID,
		Author:    meta.Author,
		Round:     meta.Round,
		Kind:      "image",
		Source:    "generated",
	}, data)
}

// DescribeImage 读回涂鸦并请视觉接口描述
func (s *Service) DescribeImage(ctx context.Context, imageRef string) (string, error) {
	dataURL, err := s.store.LoadDataURL(imageRef)
	if err != nil {
		return "", err
	}
	return s.vision.Describe(ctx, dataURL)
}

// SaveDrawing 玩家涂鸦落盘
func (s *Service) SaveDrawing(ctx context.Context, meta game.ArtifactMeta, imageData string) (string, error) {
	data, err := DecodeDataURL(imageData)
	if err != nil {
		return "", err
	}
	return s.store.Save(ctx, SaveMeta{
		RoomCode:  meta.RoomCode,
		SessionID: meta.SessionID,
		Author:    meta.Author,
		Round:     meta.Round,
		Kind:      "drawing",
		Source:    "upload",
	}, data)
}

// StockImage 随机挑一张库存兜底图
func (s *Service) StockImage(_ context.Context, _ game.ArtifactMeta) (string, error) {
	ref, err := s.stock.Pick()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrGenerationUnavailable)
	}
	return ref, nil
}

// StartCleanupTask 启动过期图片清理
func (s *Service) StartCleanupTask(interval time.Duration, stop <-chan struct{}) {
	s.store.StartCleanupTask(interval, stop)
}
