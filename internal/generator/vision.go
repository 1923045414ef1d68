package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/logger"
)

// 提给视觉模型的固定问题，描述控制在一句话内
const describeInstruction = "用20到30个字描述这幅画的内容，只描述画面，不要评价。"

// VisionClient 图生文后端客户端，走OpenAI风格的对话接口
type VisionClient struct {
	endpoint  string
	token     string
	model     string
	maxTokens int
	client    *http.Client
	log       *zap.Logger
}

// NewVisionClient 创建图生文客户端
func NewVisionClient(cfg *config.VisionGeneratorConfig) *VisionClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VisionClient{
		endpoint:  cfg.Endpoint,
		token:     cfg.Token,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: timeout},
		log:       logger.WithModule("generator"),
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Describe 为图片生成一句话描述，imageData须是dataURL编码
func (c *VisionClient) Describe(ctx context.Context, imageData string) (string, error) {
	if c.token == "" {
		return "", errors.New(errors.ErrGenerationUnavailable, "未配置视觉服务令牌")
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: describeInstruction},
				{Type: "image_url", ImageURL: &imageURL{URL: imageData}},
			},
		}},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrGenerationFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrGenerationFailed)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrGenerationFailed)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrGenerationFailed)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", errors.Wrap(err, errors.ErrGenerationFailed)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		c.log.Warn("图生文接口返回异常",
			zap.Int("status", resp.StatusCode),
			zap.String("error", msg))
		return "", errors.New(errors.ErrGenerationFailed, msg)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New(errors.ErrGenerationFailed, "响应没有描述内容")
	}

	description := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if description == "" {
		return "", errors.New(errors.ErrGenerationFailed, "描述为空")
	}
	return description, nil
}
