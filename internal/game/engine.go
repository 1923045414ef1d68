package game

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/logger"
)

// GenerationOutcome 一次生成调用的结果，围栏标记对应发起时的回合
type GenerationOutcome struct {
	Fence   genFence
	Payload string
	Err     error
}

// Engine 回合引擎
// 会话的回合字段只由引擎写，全部操作经房间锁串行化；
// 唯一的耗时调用（生成服务）在锁外的goroutine里跑，
// 完成后带着围栏标记回到串行路径。
// 广播一律在持锁时经publish发出，保证同一房间的事件顺序。
type Engine struct {
	registry   *Registry
	artifacts  ArtifactService
	genTimeout time.Duration
	publish    func(PushMessage)
	log        *zap.Logger
}

// NewEngine 创建回合引擎
func NewEngine(registry *Registry, artifacts ArtifactService, genTimeout time.Duration) *Engine {
	return &Engine{
		registry:   registry,
		artifacts:  artifacts,
		genTimeout: genTimeout,
		publish:    func(PushMessage) {},
		log:        logger.WithModule("engine"),
	}
}

// SetPublisher 注册推送出口，网关启动时挂上
func (e *Engine) SetPublisher(fn func(PushMessage)) {
	if fn != nil {
		e.publish = fn
	}
}

// Start 开局
// 仅创建者可发起；人数不足或已有进行中会话则拒绝。
func (e *Engine) Start(code, requester string) error {
	room, err := e.registry.room(code)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if requester != room.Creator {
		return errors.New(errors.ErrForbidden)
	}
	if len(room.roster) < e.registry.minPlayers {
		return errors.New(errors.ErrNotEnoughPlayers)
	}
	if room.session != nil && !room.session.Completed() {
		return errors.New(errors.ErrAlreadyRunning)
	}

	session := NewGameSession(room.settings.Mode, room.rosterSnapshot())
	rules := rulesFor(session.Mode)
	session.Artifacts = append(session.Artifacts, rules.seed())
	room.session = session

	logger.LogGameEvent("game_started", code, map[string]interface{}{
		"game_id": session.ID,
		"mode":    session.Mode,
		"players": session.PlayerNames(),
	})

	e.publish(PushMessage{
		RoomCode: code,
		Event:    EventGameStarted,
		Payload: GameStartedPayload{
			GameID:        session.ID,
			Players:       session.PlayerNames(),
			CurrentPlayer: session.CurrentPlayer().Name,
			Mode:          session.Mode,
			Seed:          session.Artifacts[0].Ref,
			TimeLimit:     room.settings.TimeLimitSeconds,
		},
	})
	return nil
}

// Submit 当前玩家提交输入
// 校验后先在锁外完成输入预处理（反转模式的涂鸦写盘），
// 再回锁记录历史并切到生成状态；写盘期间回合被超时
// 抢先推进的话，这次提交按无效状态作废。
func (e *Engine) Submit(code, player, input string) error {
	room, err := e.registry.room(code)
	if err != nil {
		return err
	}

	room.mu.Lock()
	session := room.session
	if session == nil {
		room.mu.Unlock()
		return errors.New(errors.ErrGameNotFound)
	}
	if session.Status != StatusAwaitingInput {
		room.mu.Unlock()
		return errors.New(errors.ErrInvalidState)
	}
	if player != session.CurrentPlayer().Name {
		room.mu.Unlock()
		return errors.New(errors.ErrNotYourTurn)
	}

	rules := rulesFor(session.Mode)
	meta := ArtifactMeta{
		RoomCode:  code,
		SessionID: session.ID,
		Author:    player,
		Round:     session.Round,
	}
	claim := genFence{
		sessionID: session.ID,
		round:     session.Round,
		turnIndex: session.TurnIndex,
	}
	room.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.genTimeout)
	genInput, err := rules.prepareInput(ctx, e.artifacts, meta, input)
	cancel()
	if err != nil {
		return errors.Wrap(err, errors.ErrGenerationFailed)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	session = room.session
	if session == nil || session.Status != StatusAwaitingInput ||
		session.ID != claim.sessionID ||
		session.Round != claim.round || session.TurnIndex != claim.turnIndex {
		return errors.New(errors.ErrInvalidState)
	}

	rules.recordInput(session, player, input, genInput)
	fence := session.beginGeneration()

	event := EventImageGenerating
	if session.Mode == ModeInverted {
		event = EventImageProcessing
	}
	e.publish(PushMessage{
		RoomCode: code,
		Event:    event,
		Payload:  GeneratingPayload{Player: player, Round: fence.round},
	})

	// goroutine在锁释放前拿不到房间，生成中广播必然先于回合推进
	go e.runGeneration(code, rules, meta, fence, genInput)
	return nil
}

// runGeneration 锁外执行生成调用，完成后回到串行路径推进回合
func (e *Engine) runGeneration(code string, rules modeRules, meta ArtifactMeta, fence genFence, input string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.genTimeout)
	defer cancel()

	payload, err := rules.produce(ctx, e.artifacts, meta, input)
	logger.LogGeneration(rules.backend(), code, err == nil, err)

	if rerr := e.ResolveGeneration(code, GenerationOutcome{
		Fence:   fence,
		Payload: payload,
		Err:     err,
	}); rerr != nil {
		e.log.Warn("生成结果未能落账",
			zap.String("room", code),
			zap.Error(rerr))
	}
}

// ResolveGeneration 生成完成后推进回合
// 围栏不匹配的迟到结果直接丢弃，不碰任何状态。
func (e *Engine) ResolveGeneration(code string, outcome GenerationOutcome) error {
	room, err := e.registry.room(code)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	session := room.session
	if session == nil || !session.matchesFence(outcome.Fence) {
		e.log.Info("丢弃过期的生成结果",
			zap.String("room", code),
			zap.Int("round", outcome.Fence.round),
			zap.Int("turn", outcome.Fence.turnIndex))
		return nil
	}

	rules := rulesFor(session.Mode)
	payload := outcome.Payload
	if outcome.Err != nil || payload == "" {
		meta := ArtifactMeta{
			RoomCode:  code,
			SessionID: session.ID,
			Author:    session.CurrentPlayer().Name,
			Round:     session.Round,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		payload = rules.fallback(ctx, e.artifacts, meta)
		cancel()
	}

	rules.recordOutput(session, session.CurrentPlayer().Name, payload)
	e.advanceLocked(code, room, session, rules)
	return nil
}

// Timeout 客户端观察到倒计时耗尽，强推当前回合
// 等价于一次用兜底产物完成的submit+resolve，不调用生成服务。
func (e *Engine) Timeout(code string) error {
	room, err := e.registry.room(code)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	session := room.session
	if session == nil {
		return errors.New(errors.ErrGameNotFound)
	}
	if session.Status != StatusAwaitingInput {
		return errors.New(errors.ErrInvalidState)
	}

	rules := rulesFor(session.Mode)
	meta := ArtifactMeta{
		RoomCode:  code,
		SessionID: session.ID,
		Author:    session.CurrentPlayer().Name,
		Round:     session.Round,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	rules.forceAdvance(ctx, e.artifacts, meta, session)
	cancel()

	logger.LogGameEvent("turn_timeout", code, map[string]interface{}{
		"player": meta.Author,
		"round":  meta.Round,
	})
	e.advanceLocked(code, room, session, rules)
	return nil
}

// advanceLocked 推进回合并广播，须持房间锁
func (e *Engine) advanceLocked(code string, room *Room, session *GameSession, rules modeRules) {
	session.advance()

	if session.Completed() {
		room.completed = session
		room.completedAt = time.Now()
		room.session = nil

		logger.LogGameEvent("game_completed", code, map[string]interface{}{
			"game_id": session.ID,
			"rounds":  session.Round,
		})
		e.publish(PushMessage{
			RoomCode: code,
			Event:    EventGameCompleted,
			Payload: GameCompletedPayload{
				GameID:      session.ID,
				Mode:        session.Mode,
				Players:     session.PlayerNames(),
				TextEntries: session.TextEntries,
				Artifacts:   session.Artifacts,
			},
		})
		return
	}

	payload := NextTurnPayload{
		CurrentPlayer: session.CurrentPlayer().Name,
		Round:         session.Round,
		TimeLimit:     room.settings.TimeLimitSeconds,
	}
	event := EventNextTurn
	if session.Mode == ModeInverted {
		event = EventNextTurnInv
		payload.Description = rules.chained(session)
	} else {
		payload.Image = rules.chained(session)
	}
	e.publish(PushMessage{RoomCode: code, Event: event, Payload: payload})
}

// GetState 状态快照，重连补发或主动查询
func (e *Engine) GetState(code, requester string) (*StateSnapshot, error) {
	room, err := e.registry.room(code)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	session := room.session
	if session == nil {
		session = room.completed
	}
	if session == nil {
		return nil, errors.New(errors.ErrGameNotFound)
	}

	rules := rulesFor(session.Mode)
	snapshot := &StateSnapshot{
		GameID:    session.ID,
		Mode:      session.Mode,
		Status:    session.Status,
		Round:     session.Round,
		Players:   session.PlayerNames(),
		TimeLimit: room.settings.TimeLimitSeconds,
	}
	if !session.Completed() {
		snapshot.CurrentPlayer = session.CurrentPlayer().Name
		snapshot.YourTurn = requester == session.CurrentPlayer().Name
	}
	if session.Mode == ModeInverted {
		snapshot.Description = rules.chained(session)
	} else {
		snapshot.Image = rules.chained(session)
	}
	return snapshot, nil
}

// Results 完赛结果，供结果页读取
func (e *Engine) Results(code string) (*GameCompletedPayload, error) {
	room, err := e.registry.room(code)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	session := room.completed
	if session == nil {
		return nil, errors.New(errors.ErrGameNotFound)
	}
	return &GameCompletedPayload{
		GameID:      session.ID,
		Mode:        session.Mode,
		Players:     session.PlayerNames(),
		TextEntries: session.TextEntries,
		Artifacts:   session.Artifacts,
	}, nil
}
