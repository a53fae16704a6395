package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/flowstudio/api/handlers"
	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/internal/cache"
	"github.com/BaSui01/flowstudio/internal/database"
	"github.com/BaSui01/flowstudio/internal/metrics"
	"github.com/BaSui01/flowstudio/internal/server"
	"github.com/BaSui01/flowstudio/internal/telemetry"
	"github.com/BaSui01/flowstudio/internal/tlsutil"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/runner"
	"github.com/BaSui01/flowstudio/workflow/store"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 FlowStudio 的主服务器，持有全部长生命周期组件
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	telemetry *telemetry.Providers
	collector *metrics.Collector

	redis     *redis.Client
	ownsRedis bool
	pool      *database.PoolManager
	mongo     *mongo.Client

	store   store.GraphStore
	coord   *execution.Coordinator
	watcher *config.Watcher

	health     *handlers.HealthHandler
	workflows  *handlers.WorkflowHandler
	executions *handlers.ExecutionHandler
	sessions   *handlers.SessionHandler
}

// NewServer 创建服务器实例。level 用于配置热更新时调整日志级别。
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
	}
}

// =============================================================================
// 🚀 运行
// =============================================================================

// Run 初始化全部组件并阻塞，直到 ctx 结束或某个服务器异常退出
func (s *Server) Run(ctx context.Context) error {
	defer s.shutdown()

	if err := s.init(ctx); err != nil {
		return err
	}

	api, err := s.apiManager(ctx)
	if err != nil {
		return err
	}
	var metricsSrv *server.Manager
	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = server.NewManager(mux, server.MetricsConfig(s.cfg.Server), s.logger)
	}

	s.startWatcher(ctx)

	s.logger.Info("FlowStudio started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store", string(s.cfg.Store.Type)),
		zap.String("runner", s.cfg.Execution.Runner),
		zap.Bool("telemetry", s.telemetry.Enabled()),
	)
	return server.NewGroup(s.logger, api, metricsSrv).Run(ctx)
}

// =============================================================================
// 🔧 初始化
// =============================================================================

func (s *Server) init(ctx context.Context) error {
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers
	s.collector = metrics.NewCollector("flowstudio", s.logger)

	if err := s.connectBackends(ctx); err != nil {
		return err
	}

	graphs, err := store.New(ctx, s.cfg.Store, store.Backends{
		Redis: s.redisClient(),
		DB:    s.gormDB(),
		Mongo: s.mongo,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("create graph store: %w", err)
	}
	s.store = store.NewInstrumented(graphs, s.cfg.Store.Type, s.collector)
	if s.cfg.Store.Type == store.StoreTypeRedis {
		s.ownsRedis = false
	}

	run, err := s.newRunner()
	if err != nil {
		return err
	}
	s.coord = execution.NewCoordinator(run, s.cfg.Execution.CoordinatorConfig(), s.logger,
		execution.WithRecorder(s.recorder()),
		execution.WithTracerProvider(s.telemetry.TracerProvider()),
	)

	s.initHandlers()
	return nil
}

// connectBackends 按存储类型与缓存配置建立外部连接
func (s *Server) connectBackends(ctx context.Context) error {
	needRedis := s.cfg.Store.Type == store.StoreTypeRedis ||
		(s.cfg.Analytics.CacheTTL > 0 && s.cfg.Redis.Addr != "")
	if needRedis {
		s.redis = cache.NewRedisClient(s.cfg.Redis)
		s.ownsRedis = true
		if err := s.redis.Ping(ctx).Err(); err != nil {
			if s.cfg.Store.Type == store.StoreTypeRedis {
				return fmt.Errorf("connect redis: %w", err)
			}
			s.logger.Warn("redis unavailable, analysis cache disabled", zap.Error(err))
			_ = s.redis.Close()
			s.redis = nil
		}
	}

	switch s.cfg.Store.Type {
	case store.StoreTypeSQL:
		db, err := database.Open(s.cfg.Database, s.logger)
		if err != nil {
			return err
		}
		pool, err := database.NewPoolManager(db, database.PoolConfigFrom(s.cfg.Database), s.logger,
			database.WithStatsRecorder(s.cfg.Database.Driver, s.collector),
		)
		if err != nil {
			return fmt.Errorf("create pool manager: %w", err)
		}
		s.pool = pool
	case store.StoreTypeMongo:
		client, err := connectMongo(ctx, s.cfg.Mongo)
		if err != nil {
			return err
		}
		s.mongo = client
	}
	return nil
}

func connectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func (s *Server) redisClient() redis.UniversalClient {
	if s.redis == nil {
		return nil
	}
	return s.redis
}

func (s *Server) gormDB() *gorm.DB {
	if s.pool == nil {
		return nil
	}
	return s.pool.DB()
}

// newRunner 按配置创建本地或远端运行器
func (s *Server) newRunner() (execution.Runner, error) {
	switch s.cfg.Execution.Runner {
	case "remote":
		rcfg := s.cfg.Execution.RemoteRunnerConfig()
		client := tlsutil.SecureHTTPClient(rcfg.RequestTimeout)
		remote, err := runner.NewRemoteRunner(rcfg, client, s.logger)
		if err != nil {
			return nil, fmt.Errorf("create remote runner: %w", err)
		}
		return remote, nil
	default:
		s.logger.Warn("local runner uses dry-run collaborators; model and tool nodes echo their input")
		opts := append(dryRunOptions(),
			runner.WithLocalTracerProvider(s.telemetry.TracerProvider()),
		)
		return runner.NewLocalRunner(s.cfg.Execution.LocalRunnerConfig(), s.logger, opts...), nil
	}
}

// recorder 合并 Prometheus 与 OpenTelemetry 指标
func (s *Server) recorder() execution.Recorder {
	if !s.telemetry.Enabled() {
		return s.collector
	}
	otelRec, err := telemetry.NewRecorder(s.telemetry.MeterProvider())
	if err != nil {
		s.logger.Warn("failed to create otel recorder", zap.Error(err))
		return s.collector
	}
	return execution.Recorders(s.collector, otelRec)
}

func (s *Server) initHandlers() {
	s.health = handlers.NewHealthHandler(s.logger)
	s.health.RegisterCheck(handlers.NewPingCheck("store", s.store.Ping))
	if s.redis != nil {
		s.health.RegisterCheck(handlers.NewPingCheck("redis", func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		}))
	}
	if s.pool != nil {
		s.health.RegisterCheck(handlers.NewPingCheck("database", s.pool.Ping))
	}

	workflowOpts := []handlers.WorkflowOption{
		handlers.WithAnalyticsOptions(s.cfg.Analytics.Options()...),
		handlers.WithWorkflowRecorder(s.collector),
	}
	if s.cfg.Analytics.CacheTTL > 0 && s.redis != nil {
		mgr, err := cache.NewManager(s.redis, cache.DefaultConfig(), s.logger)
		if err != nil {
			s.logger.Warn("analysis cache disabled", zap.Error(err))
		} else {
			workflowOpts = append(workflowOpts, handlers.WithReportCache(
				cache.NewReportCache(mgr, s.cfg.Analytics.CacheVariant(), s.cfg.Analytics.CacheTTL),
			))
		}
	}
	s.workflows = handlers.NewWorkflowHandler(s.store, s.logger, workflowOpts...)

	execOpts := []handlers.ExecutionOption{handlers.WithExecutionRecorder(s.collector)}
	if len(s.cfg.Server.CORSAllowedOrigins) > 0 {
		execOpts = append(execOpts, handlers.WithOriginPatterns(s.cfg.Server.CORSAllowedOrigins...))
	}
	s.executions = handlers.NewExecutionHandler(s.coord, s.store, s.logger, execOpts...)

	s.sessions = handlers.NewSessionHandler(s.store, s.logger,
		handlers.WithHistoryOptions(s.cfg.Editor.HistoryOptions()...),
		handlers.WithSessionTTL(s.cfg.Editor.SessionTTL),
	)
}

func (s *Server) apiManager(ctx context.Context) (*server.Manager, error) {
	srvCfg, err := server.APIConfig(s.cfg.Server)
	if err != nil {
		return nil, err
	}
	handler := newRouter(ctx, s.cfg, routes{
		health:     s.health,
		workflows:  s.workflows,
		executions: s.executions,
		sessions:   s.sessions,
		metrics:    s.collector,
	}, s.logger)
	return server.NewManager(handler, srvCfg, s.logger), nil
}

// startWatcher 监听配置文件，热更新日志级别
func (s *Server) startWatcher(ctx context.Context) {
	if s.configPath == "" {
		return
	}
	loader := config.NewLoader().WithConfigPath(s.configPath)
	w, err := config.NewWatcher(loader, s.cfg, config.WithWatcherLogger(s.logger))
	if err != nil {
		s.logger.Warn("config watcher disabled", zap.Error(err))
		return
	}
	w.OnReload(func(prev, next *config.Config) {
		if prev.Log.Level == next.Log.Level {
			return
		}
		s.level.SetLevel(parseLevel(next.Log.Level))
		s.logger.Info("log level changed",
			zap.String("from", prev.Log.Level),
			zap.String("to", next.Log.Level),
		)
	})
	if err := w.Start(ctx); err != nil {
		s.logger.Warn("config watcher disabled", zap.Error(err))
		return
	}
	s.watcher = w
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// shutdown 按依赖逆序释放组件：执行 → 存储 → 连接 → 遥测
func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.coord != nil {
		if err := s.coord.Close(ctx); err != nil {
			s.logger.Error("coordinator shutdown error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && !errors.Is(err, store.ErrStoreClosed) {
			s.logger.Error("graph store shutdown error", zap.Error(err))
		}
	} else if s.mongo != nil {
		_ = s.mongo.Disconnect(ctx)
	}
	if s.redis != nil && s.ownsRedis {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis shutdown error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("database shutdown error", zap.Error(err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
