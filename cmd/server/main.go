package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/wfunc/teleprompt/internal/api"
	"github.com/wfunc/teleprompt/internal/config"
	"github.com/wfunc/teleprompt/internal/database"
	"github.com/wfunc/teleprompt/internal/errors"
	"github.com/wfunc/teleprompt/internal/game"
	"github.com/wfunc/teleprompt/internal/generator"
	"github.com/wfunc/teleprompt/internal/logger"
	"github.com/wfunc/teleprompt/internal/repository"
	"github.com/wfunc/teleprompt/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *game.Registry
	engine    *game.Engine
	artifacts *generator.Service
	hub       *websocket.Hub
	router    *api.Router
	httpSrv   *http.Server

	// 关闭控制
	stopCh chan struct{}
	errCh  chan error
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	printStartInfo(cfg)

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		stopCh: make(chan struct{}),
		errCh:  make(chan error, 1),
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动你画我猜接力服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	s.startServices()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.cfg = newCfg
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	// 数据库
	if err := s.initDatabase(); err != nil {
		return err
	}

	// 产物生成服务
	repo := repository.NewArtifactRepository(database.GetDB())
	artifacts, err := generator.NewService(&s.cfg.Generator, repo, s.cfg.Game.Retention)
	if err != nil {
		return errors.Wrap(err, errors.ErrGenerationUnavailable, "初始化生成服务失败")
	}
	s.artifacts = artifacts

	// 房间注册表与回合引擎
	s.registry = game.NewRegistry(&s.cfg.Room, s.cfg.Game.Retention)
	s.engine = game.NewEngine(s.registry, s.artifacts, s.cfg.Generator.Image.Timeout)

	// WebSocket网关
	s.hub = websocket.NewHub(logger.WithModule("websocket"))
	handler := websocket.NewGameMessageHandler(s.hub, s.registry, s.engine)
	s.hub.SetMessageHandler(handler)

	// HTTP路由
	s.router = api.NewRouter(s.cfg, database.GetDB(), s.registry, s.engine, s.hub, logger.WithModule("api"))
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// startServices 启动服务
func (s *Server) startServices() {
	s.logger.Info("启动服务...")

	// 连接分发循环
	go s.hub.Run()

	// 留存期清理
	s.registry.StartCleanupTask(s.cfg.Game.CleanupInterval, s.stopCh)
	s.artifacts.StartCleanupTask(s.cfg.Game.CleanupInterval, s.stopCh)

	// HTTP服务
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
	}()

	s.logger.Info("所有服务启动完成")
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case err := <-s.errCh:
		s.logger.Error("HTTP服务异常退出", zap.Error(err))
	}
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
	}

	// 停止后台清理任务
	close(s.stopCh)

	// 关闭数据库
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	logger.Cleanup()
	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("你画我猜接力服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("你画我猜接力服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  teleprompt-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  TELEPROMPT_GENERATOR_IMAGE_TOKEN   文生图接口令牌")
	fmt.Println("  TELEPROMPT_GENERATOR_VISION_TOKEN  图生文接口令牌")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  teleprompt-server -config=/path/to/config.yaml")
	fmt.Println("  teleprompt-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	banner := `
╔═══════════════════════════════════════════════════╗
║                                                   ║
║   _____    _      ____                       _    ║
║  |_   _|__| | ___|  _ \ _ __ ___  _ __  _ __| |_  ║
║    | |/ _ \ |/ _ \ |_) | '__/ _ \| '_ \| '_ \ __| ║
║    | |  __/ |  __/  __/| | | (_) | | | | |_) | |_ ║
║    |_|\___|_|\___|_|   |_|  \___/|_| |_| .__/ \__|║
║                                        |_|        ║
║                你画我猜接力服务器                 ║
║                                                   ║
╚═══════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Println("═══════════════════════════════════════════════════════")
}
