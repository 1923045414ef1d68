package game

import "context"

// ArtifactService 产物生成与落盘的外部协作方
// 所有调用都可能失败，引擎对每一步都有兜底路径。
type ArtifactService interface {
	// GenerateImage 按提示词生成图片，返回可访问的图片路径
	GenerateImage(ctx context.Context, meta ArtifactMeta, prompt string) (string, error)
	// DescribeImage 为图片生成文字描述
	DescribeImage(ctx context.Context, imageRef string) (string, error)
	// SaveDrawing 保存玩家涂鸦（dataURL编码），返回图片路径
	SaveDrawing(ctx context.Context, meta ArtifactMeta, imageData string) (string, error)
	// StockImage 随机挑一张库存图片作为兜底
	StockImage(ctx context.Context, meta ArtifactMeta) (string, error)
}

// ArtifactMeta 产物归属信息，落盘记录用
type ArtifactMeta struct {
	RoomCode  string
	SessionID string
	Author    string
	Round     int
}

// 生成全线失败时的保底产物
const (
	placeholderImage       = "/static/img/placeholder.png"
	placeholderDescription = "一幅神秘的画，内容已无从知晓"
	placeholderPrompt      = "（超时未提交）"
	invertedSeedText       = "画一个正在偷吃披萨的外星人"
)

// modeRules 模式策略
// 正常模式链图片（提示词→图），反转模式链文字（涂鸦→描述），
// 轮次推进逻辑由引擎统一处理。
type modeRules interface {
	// seed 开局种子产物，没有作者
	seed() Artifact
	// prepareInput 锁外预处理玩家提交，返回生成调用的入参
	// （正常模式即提示词本身，反转模式把涂鸦写盘后返回路径）
	prepareInput(ctx context.Context, svc ArtifactService, meta ArtifactMeta, input string) (string, error)
	// recordInput 持锁把玩家提交写进历史
	recordInput(s *GameSession, author, input, prepared string)
	// produce 锁外执行生成调用，返回产物内容（图片路径或描述文本）
	produce(ctx context.Context, svc ArtifactService, meta ArtifactMeta, input string) (string, error)
	// fallback 生成失败时的兜底产物内容
	fallback(ctx context.Context, svc ArtifactService, meta ArtifactMeta) string
	// recordOutput 持锁把生成结果写进历史
	recordOutput(s *GameSession, author string, payload string)
	// forceAdvance 超时强推：补齐占位输入和兜底产物
	forceAdvance(ctx context.Context, svc ArtifactService, meta ArtifactMeta, s *GameSession)
	// chained 传给下一位玩家的链式载荷
	chained(s *GameSession) string
	// backend 所用生成后端的名字，日志用
	backend() string
}

func rulesFor(mode GameMode) modeRules {
	if mode == ModeInverted {
		return invertedRules{}
	}
	return normalRules{}
}

// normalRules 正常模式：文字提示生成图片
type normalRules struct{}

func (normalRules) seed() Artifact {
	return Artifact{Round: 0, Kind: ArtifactImage, Ref: placeholderImage}
}

func (normalRules) prepareInput(_ context.Context, _ ArtifactService, _ ArtifactMeta, input string) (string, error) {
	return input, nil
}

func (normalRules) recordInput(s *GameSession, author, input, _ string) {
	s.TextEntries = append(s.TextEntries, TextEntry{
		Author: author,
		Round:  s.Round,
		Text:   input,
	})
}

func (normalRules) produce(ctx context.Context, svc ArtifactService, meta ArtifactMeta, input string) (string, error) {
	return svc.GenerateImage(ctx, meta, input)
}

func (normalRules) fallback(ctx context.Context, svc ArtifactService, meta ArtifactMeta) string {
	if ref, err := svc.StockImage(ctx, meta); err == nil {
		return ref
	}
	return placeholderImage
}

func (normalRules) recordOutput(s *GameSession, author string, payload string) {
	s.Artifacts = append(s.Artifacts, Artifact{
		Author: author,
		Round:  s.Round,
		Kind:   ArtifactImage,
		Ref:    payload,
	})
}

func (r normalRules) forceAdvance(ctx context.Context, svc ArtifactService, meta ArtifactMeta, s *GameSession) {
	s.TextEntries = append(s.TextEntries, TextEntry{
		Author: s.CurrentPlayer().Name,
		Round:  s.Round,
		Text:   placeholderPrompt,
	})
	r.recordOutput(s, s.CurrentPlayer().Name, r.fallback(ctx, svc, meta))
}

func (normalRules) backend() string { return "image" }

func (normalRules) chained(s *GameSession) string {
	if a := s.lastArtifact(); a != nil {
		return a.Ref
	}
	return placeholderImage
}

// invertedRules 反转模式：涂鸦生成描述
type invertedRules struct{}

func (invertedRules) seed() Artifact {
	return Artifact{Round: 0, Kind: ArtifactText, Ref: invertedSeedText}
}

// prepareInput 涂鸦写盘，磁盘和数据库操作都在这一步，调用方不持锁
func (invertedRules) prepareInput(ctx context.Context, svc ArtifactService, meta ArtifactMeta, input string) (string, error) {
	return svc.SaveDrawing(ctx, meta, input)
}

func (invertedRules) recordInput(s *GameSession, author, _, prepared string) {
	s.Artifacts = append(s.Artifacts, Artifact{
		Author: author,
		Round:  s.Round,
		Kind:   ArtifactImage,
		Ref:    prepared,
	})
}

func (invertedRules) produce(ctx context.Context, svc ArtifactService, _ ArtifactMeta, input string) (string, error) {
	// input此时已是落盘后的涂鸦路径
	return svc.DescribeImage(ctx, input)
}

func (invertedRules) fallback(_ context.Context, _ ArtifactService, _ ArtifactMeta) string {
	return placeholderDescription
}

func (invertedRules) recordOutput(s *GameSession, author string, payload string) {
	s.TextEntries = append(s.TextEntries, TextEntry{
		Author: author,
		Round:  s.Round,
		Text:   payload,
	})
}

func (r invertedRules) forceAdvance(_ context.Context, _ ArtifactService, _ ArtifactMeta, s *GameSession) {
	s.Artifacts = append(s.Artifacts, Artifact{
		Author: s.CurrentPlayer().Name,
		Round:  s.Round,
		Kind:   ArtifactImage,
		Ref:    placeholderImage,
	})
	r.recordOutput(s, s.CurrentPlayer().Name, placeholderDescription)
}

func (invertedRules) backend() string { return "vision" }

func (invertedRules) chained(s *GameSession) string {
	if t := s.lastText(); t != nil {
		return t.Text
	}
	// 首回合沿用种子指令
	if len(s.Artifacts) > 0 && s.Artifacts[0].Kind == ArtifactText {
		return s.Artifacts[0].Ref
	}
	return invertedSeedText
}
