package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/essay-correction-api/api/swagger"
	"github.com/noah-isme/essay-correction-api/internal/handler"
	"github.com/noah-isme/essay-correction-api/internal/middleware"
	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/repository"
	"github.com/noah-isme/essay-correction-api/internal/rubric"
	"github.com/noah-isme/essay-correction-api/internal/service"
	"github.com/noah-isme/essay-correction-api/pkg/cache"
	"github.com/noah-isme/essay-correction-api/pkg/config"
	"github.com/noah-isme/essay-correction-api/pkg/database"
	"github.com/noah-isme/essay-correction-api/pkg/export"
	"github.com/noah-isme/essay-correction-api/pkg/jobs"
	"github.com/noah-isme/essay-correction-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/essay-correction-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/essay-correction-api/pkg/middleware/requestid"
	"github.com/noah-isme/essay-correction-api/pkg/storage"
)

// @title Essay Correction API
// @version 1.0.0
// @description Essay submission, rubric grading and corrected PDF delivery
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	files, err := storage.NewLocalStorage(cfg.Essays.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare essay storage", "dir", cfg.Essays.StorageDir, "error", err)
	}

	app := buildApp(cfg, logr, db, redisClient, files)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app.auditQueue.Start(rootCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("could not stop server gracefully", "error", err)
	}
	if err := app.auditQueue.Stop(ctx); err != nil {
		logr.Sugar().Warnw("audit queue did not drain", "error", err, "stats", app.auditQueue.Stats())
	}
	logr.Sugar().Infow("shutdown complete")
}

type application struct {
	router     *gin.Engine
	auditQueue *jobs.Queue
}

func buildApp(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, files *storage.LocalStorage) *application {
	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	essayRepo := repository.NewEssayRepository(db)
	highlightRepo := repository.NewHighlightRepository(db)
	userRepo := repository.NewUserRepository(db)
	suggestionRepo := repository.NewAISuggestionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	audit := service.NewAsyncAuditLogger(repository.NewAuditRepository(db), logr)
	auditQueue := jobs.NewQueue("audit", audit.Handle, jobs.QueueConfig{
		Workers:    2,
		BufferSize: 512,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logr,
	})
	audit.Attach(auditQueue)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		FileTokenExpiry:   cfg.JWT.FileTokenTTL,
		Issuer:            cfg.JWT.Issuer,
	})

	catalog := rubric.ENEM2024()
	publicAPI := strings.TrimRight(cfg.PublicBaseURL, "/") + cfg.APIPrefix

	essaySvc := service.NewEssayService(essayRepo, highlightRepo, files, authSvc, audit, rubric.NewEngine(catalog), metricsSvc, validate, logr, service.EssayConfig{
		MaxUploadBytes:      cfg.Essays.MaxUploadBytes,
		AllowedMIMEs:        cfg.Essays.AllowedMIMEs,
		MaxAnnulmentReasons: cfg.Essays.MaxAnnulmentReason,
		PublicBaseURL:       cfg.PublicBaseURL,
		APIPrefix:           cfg.APIPrefix,
	})
	annotationSvc := service.NewAnnotationService(highlightRepo, essayRepo, cacheSvc, audit, validate, logr)
	renderer := service.NewPDFArtifactRenderer(export.NewCorrectionRenderer(), files, catalog, publicAPI)
	dispatcher := service.NewEmailDispatcher(service.EmailSettings{
		Provider:    cfg.Email.Provider,
		APIKey:      cfg.Email.SendgridAPIKey,
		FromName:    cfg.Email.FromName,
		FromAddress: cfg.Email.FromAddress,
		Signature:   cfg.Email.Signature,
	}, logr)
	deliverySvc := service.NewDeliveryService(
		essayRepo,
		highlightRepo,
		userRepo,
		renderer,
		dispatcher,
		storage.NewSignedURLSigner(cfg.Essays.SignedURLSecret, cfg.Essays.SignedURLTTL),
		audit,
		metricsSvc,
		logr,
		service.DeliveryConfig{
			RenderTimeout:   cfg.Essays.RenderTimeout,
			DispatchTimeout: cfg.Essays.DispatchTimeout,
			Signature:       cfg.Email.Signature,
		},
	)
	aiSvc := service.NewAISuggestionService(suggestionRepo, essayRepo, service.NewMockSuggestionProvider(), audit, metricsSvc, validate, logr, service.AIConfig{
		Enabled:    cfg.AI.Enabled,
		Provider:   cfg.AI.Provider,
		MaxRawText: cfg.AI.MaxRawText,
	})
	rubricSvc := service.NewRubricService(catalog, cacheSvc, logr)

	essayHandler := handler.NewEssayHandler(essaySvc)
	highlightHandler := handler.NewHighlightHandler(annotationSvc)
	deliveryHandler := handler.NewDeliveryHandler(deliverySvc)
	aiHandler := handler.NewAIHandler(aiSvc)
	rubricHandler := handler.NewRubricHandler(rubricSvc)
	authHandler := handler.NewAuthHandler()
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
		"redis":    cacheRepo,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Link-authenticated downloads.
	api.GET("/essays/:id/file", middleware.Audit(audit, models.AuditActionFileDownload, "essay", "id"), essayHandler.File)
	api.GET("/essays/:id/corrected-pdf", middleware.Audit(audit, models.AuditActionPDFDownload, "essay", "id"), deliveryHandler.CorrectedPDF)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	secured.GET("/auth/me", authHandler.Me)
	secured.GET("/rubrics/enem", rubricHandler.ENEM)

	teacher := middleware.RequireRoles(models.RoleTeacher)
	readers := middleware.RequireRoles(models.RoleStudent, models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin)

	essays := secured.Group("/essays")
	essays.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleTeacher), essayHandler.Submit)
	essays.GET("/:id", readers, essayHandler.Get)
	essays.PUT("/:id/correction", teacher, essayHandler.OpenCorrection)
	essays.POST("/:id/highlights", teacher, highlightHandler.Add)
	essays.GET("/:id/highlights", middleware.RequireRoles(models.RoleStudent, models.RoleTeacher), highlightHandler.List)
	essays.POST("/:id/grade", teacher, essayHandler.SubmitGrade)
	essays.POST("/:id/send-email", teacher, deliveryHandler.Deliver)
	essays.POST("/:id/file-token", middleware.RequireRoles(models.RoleStudent, models.RoleTeacher), essayHandler.IssueFileToken)

	ai := secured.Group("/ai")
	ai.Use(teacher)
	ai.POST("/correction-suggestion", aiHandler.Suggest)
	ai.POST("/suggestions/:id/apply", aiHandler.Apply)

	return &application{router: r, auditQueue: auditQueue}
}
