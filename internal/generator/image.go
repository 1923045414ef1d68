package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/logger"
)

// ImageClient 文生图后端客户端
// 调HuggingFace风格的推理接口，响应体即图片字节。
type ImageClient struct {
	endpoint string
	token    string
	steps    int
	guidance float64
	client   *http.Client
	log      *zap.Logger
}

// NewImageClient 创建文生图客户端
func NewImageClient(cfg *config.ImageGeneratorConfig) *ImageClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageClient{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		steps:    cfg.InferenceSteps,
		guidance: cfg.GuidanceScale,
		client:   &http.Client{Timeout: timeout},
		log:      logger.WithModule("generator"),
	}
}

type imageRequest struct {
	Inputs     string          `json:"inputs"`
	Parameters imageParameters `json:"parameters"`
}

type imageParameters struct {
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

// Generate 按提示词生成一张图片，返回图片字节
func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if c.token == "" {
		return nil, errors.New(errors.ErrGenerationUnavailable, "未配置生成服务令牌")
	}

	body, err := json.Marshal(imageRequest{
		Inputs: prompt,
		Parameters: imageParameters{
			NumInferenceSteps: c.steps,
			GuidanceScale:     c.guidance,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrGenerationFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrGenerationFailed)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrGenerationFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 接口出错时返回的是JSON错误信息而不是图片
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("文生图接口返回异常",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", msg))
		return nil, errors.New(errors.ErrGenerationFailed,
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrGenerationFailed)
	}
	if len(data) == 0 {
		return nil, errors.New(errors.ErrGenerationFailed, "响应图片为空")
	}
	return data, nil
}
