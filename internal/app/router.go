package app

import (
	"certlearn_backend/docs"
	"certlearn_backend/internal/config"
	"certlearn_backend/internal/middleware"
	"certlearn_backend/internal/model"

	"certlearn_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		// 学员通用接口
		a.registerLearnerRoutes(authGroup, c)

		// 讲师创作接口
		a.registerInstructorRoutes(authGroup, c)
	}

	// 3. 管理员接口
	a.registerAdminRoutes(router, c, repos, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		// 公开的证书核验，供第三方使用
		public.GET("/certificates/verify/:serial", c.certificate.VerifyCertificate)

		// 浏览类：游客可见已发布的轨道目录
		public.GET("/tracks", middleware.TryAuthMiddleware(a.Config), c.content.ListTracks)
		public.GET("/tracks/:id", middleware.TryAuthMiddleware(a.Config), c.content.GetTrack)
	}
}

func (a *App) registerLearnerRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)
	rg.PUT("/profile/password", c.auth.ChangePassword)

	// 课时与进度
	rg.GET("/lessons/:id", c.content.GetLesson)
	rg.GET("/lessons/:id/status", c.progress.GetLessonStatus)
	rg.GET("/stages/:id/status", c.progress.GetStageStatus)
	rg.POST("/checkpoints/:id/attempts", c.progress.SubmitAttempt)
	rg.GET("/checkpoints/:id/progress", c.progress.GetCheckpointProgress)

	// 间隔复习
	rg.POST("/lessons/:id/cards", c.content.ConvertLessonToCards)
	rg.GET("/lessons/:id/cards", c.content.ListLessonCards)
	rg.GET("/reviews/due", c.review.ListDueCards)
	rg.POST("/cards/:id/reviews", c.review.SubmitReview)

	// 考试会话
	rg.POST("/quiz/banks/:id/sessions", c.quiz.StartSession)
	rg.GET("/quiz/sessions/:id", c.quiz.GetSession)
	rg.POST("/quiz/sessions/:id/answers", c.quiz.SubmitSessionAnswer)
	rg.PUT("/quiz/sessions/:id/flags", c.quiz.FlagSessionQuestion)
	rg.POST("/quiz/sessions/:id/finish", c.quiz.FinishSession)
	rg.GET("/quiz/results", c.quiz.ListMyResults)

	// 证书
	rg.GET("/certificates", c.certificate.ListMyCertificates)
}

func (a *App) registerInstructorRoutes(rg *gin.RouterGroup, c *controllers) {
	instructor := rg.Group("/")
	instructor.Use(middleware.RoleMiddleware(model.Instructor, model.Admin))
	{
		// 内容层级创作
		instructor.POST("/tracks", c.content.CreateTrack)
		instructor.PUT("/tracks/:id", c.content.UpdateTrack)
		instructor.DELETE("/tracks/:id", c.content.DeleteTrack)
		instructor.POST("/modules", c.content.CreateModule)
		instructor.POST("/lessons", c.content.CreateLesson)
		instructor.DELETE("/lessons/:id", c.content.DeleteLesson)
		instructor.POST("/stages", c.content.CreateStage)
		instructor.GET("/stages/:id", c.content.GetStage)
		instructor.GET("/stages/:id/export", c.content.ExportStage)
		instructor.PUT("/stages/:id", c.content.UpdateStage)
		instructor.POST("/checkpoints", c.content.CreateCheckpoint)
		instructor.PUT("/checkpoints/:id", c.content.UpdateCheckpoint)
		instructor.DELETE("/checkpoints/:id", c.content.DeleteCheckpoint)

		// 题库创作
		instructor.POST("/quiz/banks", c.quiz.CreateBank)
		instructor.GET("/quiz/banks", c.quiz.ListBanks)
		instructor.GET("/quiz/banks/:id", c.quiz.GetBank)
		instructor.PUT("/quiz/banks/:id", c.quiz.UpdateBank)
		instructor.DELETE("/quiz/banks/:id", c.quiz.DeleteBank)
		instructor.POST("/quiz/banks/:id/questions", c.quiz.AddQuestion)
		instructor.PUT("/quiz/questions/:id", c.quiz.UpdateQuestion)
		instructor.DELETE("/quiz/questions/:id", c.quiz.DeleteQuestion)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/users", c.user.GetUsers)
		admin.GET("/users/:id", c.user.GetUser)
		admin.PUT("/users/:id", c.user.UpdateUser)
		admin.PUT("/users/:id/disable", c.user.DisableUser)
	}
}
