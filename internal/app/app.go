package app

import (
	"certlearn_backend/internal/config"
	"certlearn_backend/internal/controller"
	"certlearn_backend/internal/repository"
	"certlearn_backend/internal/service"
	"certlearn_backend/pkg/configwatcher"
	"certlearn_backend/pkg/database"
	"certlearn_backend/pkg/logger"
	"certlearn_backend/pkg/monitoring"
	"certlearn_backend/pkg/security"
	"certlearn_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user        *repository.UserRepository
	content     *repository.ContentRepository
	progress    *repository.ProgressRepository
	flashcard   *repository.FlashcardRepository
	quiz        *repository.QuizRepository
	certificate *repository.CertificateRepository
}

type services struct {
	auth        *service.AuthService
	user        *service.UserService
	storage     *service.StorageService
	content     *service.ContentService
	progress    *service.ProgressService
	srs         *service.SRSService
	quizBank    *service.QuizBankService
	quizSession *service.QuizSessionService
	certificate *service.CertificateService
}

type controllers struct {
	auth        *controller.AuthController
	content     *controller.ContentController
	progress    *controller.ProgressController
	review      *controller.ReviewController
	quiz        *controller.QuizController
	certificate *controller.CertificateController
	user        *controller.UserController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		content:     repository.NewContentRepository(db),
		progress:    repository.NewProgressRepository(db),
		flashcard:   repository.NewFlashcardRepository(db),
		quiz:        repository.NewQuizRepository(db),
		certificate: repository.NewCertificateRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.user = service.NewUserService(repos.user)

	s.progress = service.NewProgressService(
		repos.content,
		repos.progress,
		time.Duration(cfg.Engine.CheckpointCacheSeconds)*time.Second,
	)
	s.content = service.NewContentService(repos.content, repos.flashcard, s.progress)

	s.srs = service.NewSRSService(
		repos.flashcard,
		rdb,
		time.Duration(cfg.Engine.ReviewTokenHours)*time.Hour,
	)

	s.certificate = service.NewCertificateService(repos.certificate, repos.user, s.storage)
	s.quizBank = service.NewQuizBankService(repos.quiz)
	s.quizSession = service.NewQuizSessionService(
		repos.quiz,
		repos.quiz,
		s.progress,
		s.certificate,
		time.Duration(cfg.Engine.SessionRetentionMinutes)*time.Minute,
	)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:        controller.NewAuthController(s.auth, s.user),
		content:     controller.NewContentController(s.content),
		progress:    controller.NewProgressController(s.progress),
		review:      controller.NewReviewController(s.srs),
		quiz:        controller.NewQuizController(s.quizBank, s.quizSession),
		certificate: controller.NewCertificateController(s.certificate),
		user:        controller.NewUserController(s.user),
		health:      controller.NewHealthController(db, rdb),
	}
}

func rateLimitSettings(cfg *config.Config) (int, time.Duration) {
	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	return maxRequests, window
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	limiter := security.NewIPRateLimiter(rateLimitSettings(cfg))
	router.Use(limiter.Middleware())

	// 限流参数随配置热加载生效
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		limiter.SetLimits(rateLimitSettings(newCfg))
	})

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	// 回收保留期之外的已结束考试会话
	s.quizSession.StartJanitor(time.Minute)

	// 配置文件热加载
	go configwatcher.WatchConfig("configs/config.yaml", a.Config, func(newCfg interface{}) {
		cfg, ok := newCfg.(*config.Config)
		if !ok {
			return
		}
		logger.Log.Info("config reloaded")
		a.Config = cfg
		for _, cb := range a.configCallbacks {
			cb(cfg)
		}
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 只承担复习幂等 token，缺失时降级为 sequence 校验
		logger.Log.Warn("Redis unavailable, review idempotency degrades to sequence checks", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		_, err := tracing.InitTracer("certlearn-engine", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 停止会话清理协程
	if a.services != nil && a.services.quizSession != nil {
		a.services.quizSession.StopJanitor()
	}

	// 关闭服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
