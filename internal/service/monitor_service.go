package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carecall-monitor/internal/config"
	"carecall-monitor/internal/database"
	httpapi "carecall-monitor/internal/http"
	"carecall-monitor/internal/manager"
	"carecall-monitor/internal/notify"
	"carecall-monitor/internal/redisx"
	"carecall-monitor/internal/repository"
	"carecall-monitor/internal/store"
)

// MonitorService 进程级装配：数据库、Redis、站点监控器与查询面
type MonitorService struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	activeRepo  *repository.ActiveCallsRepository
	manager     *manager.MultiSiteManager
	server      *Server
}

// NewMonitorService 建立外部连接并装配各层，失败时返回错误由 main 终止进程
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	redisClient := redisx.NewClient(redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisx.Ping(context.Background(), redisClient); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	activeRepo := repository.NewActiveCallsRepository(db, logger)
	historyRepo := repository.NewCallHistoryRepository(db, logger)
	tokensRepo := repository.NewDeviceTokensRepository(db, logger)
	settingsRepo := repository.NewUrgencySettingsRepository(db, logger)

	var dispatcher *notify.Dispatcher
	if cfg.Push.URL != "" {
		dispatcher = notify.NewDispatcher(notify.Config{
			PushURL: cfg.Push.URL,
			APIKey:  cfg.Push.APIKey,
			Timeout: cfg.Push.Timeout,
		}, tokensRepo, settingsRepo, logger)
	} else {
		logger.Warn("PUSH_URL not set, notification dispatch disabled")
	}

	var publisher store.EventPublisher = redisx.NewStreamPublisher(redisClient, redisx.DefaultEventStream)

	mgr := manager.NewMultiSiteManager(manager.Deps{
		ActiveRepo:  activeRepo,
		HistoryRepo: historyRepo,
		Settings:    settingsRepo,
		Publisher:   publisher,
		Redis:       redisClient,
		Dispatcher:  dispatcher,
	}, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterCallRoutes(httpapi.NewCallHandler(mgr, logger))
	router.RegisterDeviceTokenRoutes(httpapi.NewDeviceTokenHandler(tokensRepo, logger))
	router.RegisterSettingsRoutes(httpapi.NewSettingsHandler(settingsRepo, logger))
	router.HandleHandler("/metrics", promhttp.Handler())

	return &MonitorService{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		activeRepo:  activeRepo,
		manager:     mgr,
		server:      NewServer(cfg.HTTP.Addr, router, logger),
	}, nil
}

// Manager 暴露给诊断与测试
func (s *MonitorService) Manager() *manager.MultiSiteManager {
	return s.manager
}

// Start 加载站点清单并启动各站点监控器
// 先清掉上次异常退出残留的活跃行，再开始接收事件，避免把新事件一并抹掉
func (s *MonitorService) Start(ctx context.Context) error {
	sites, err := config.LoadSites(s.cfg.SitesFile)
	if err != nil {
		return err
	}

	for _, site := range sites {
		if err := s.activeRepo.DeleteBySite(ctx, site.ID); err != nil {
			s.logger.Warn("Failed to clear stale active calls",
				zap.String("site_id", site.ID),
				zap.Error(err),
			)
		}
	}

	registered := 0
	for _, site := range sites {
		if err := s.manager.RegisterMonitor(ctx, site); err != nil {
			return fmt.Errorf("failed to register site %s: %w", site.ID, err)
		}
		if _, err := s.manager.GetMonitor(site.ID); err == nil {
			registered++
		}
	}

	s.logger.Info("Monitor service started",
		zap.Int("sites_configured", len(sites)),
		zap.Int("monitors_registered", registered),
	)
	return nil
}

// Serve 阻塞运行 HTTP 查询面
func (s *MonitorService) Serve() error {
	return s.server.Start()
}

// Stop 停止全部监控器与 HTTP 服务并关闭外部连接
func (s *MonitorService) Stop(ctx context.Context) error {
	s.manager.StopAll(ctx)

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Warn("Redis close error", zap.Error(err))
	}
	return database.Close(s.db)
}
