package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/aoabd/course-api/api/swagger"
	"github.com/aoabd/course-api/internal/handler"
	"github.com/aoabd/course-api/internal/middleware"
	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/internal/repository"
	"github.com/aoabd/course-api/internal/service"
	"github.com/aoabd/course-api/pkg/cache"
	"github.com/aoabd/course-api/pkg/certificate"
	"github.com/aoabd/course-api/pkg/clock"
	"github.com/aoabd/course-api/pkg/config"
	"github.com/aoabd/course-api/pkg/database"
	"github.com/aoabd/course-api/pkg/logger"
	"github.com/aoabd/course-api/pkg/mailer"
	corsmiddleware "github.com/aoabd/course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aoabd/course-api/pkg/middleware/requestid"
	"github.com/aoabd/course-api/pkg/storage"
)

// @title Course Enrollment API
// @version 1.0.0
// @description Course and event enrollment backend for a medical professional association.
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	fileStore, err := storage.NewLocalStore(cfg.Storage.BaseDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		logr.Sugar().Fatalw("failed to init file store", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	validate := validator.New()
	clk := clock.System{}

	// Repositories.
	categoryRepo := repository.NewCategoryRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(cfg.JWT)

	var sender mailer.Mailer = mailer.Noop{}
	if cfg.Mail.Enabled {
		sender = mailer.NewSMTP(cfg.Mail)
	}
	notificationSvc := service.NewNotificationService(sender, cfg.Mail.Workers, logr)

	nameResolver := service.NewCachedNameResolver(categoryRepo, cacheRepo, metricsSvc, cfg.Enrollment.CategoryNameTTL)
	eligibilitySvc := service.NewEligibilityService(studentRepo, courseRepo, nameResolver, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, courseRepo, studentRepo, eligibilitySvc, notificationSvc, clk, validate, logr)
	paymentSvc := service.NewPaymentService(enrollmentRepo, courseRepo, studentRepo, fileStore, notificationSvc, clk, validate, logr)
	certificateSvc := service.NewCertificateService(enrollmentRepo, courseRepo, categoryRepo, studentRepo, certificate.NewPDFRenderer(), fileStore, cfg.Certificates, clk, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, categoryRepo, fileStore, validate, logr)
	categorySvc := service.NewCategoryService(categoryRepo, cacheRepo, cfg.Enrollment.CategoryNameTTL, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, categoryRepo, fileStore, cfg.Certificates.HistoryCap, validate, logr)
	reconcilerSvc := service.NewReconcilerService(courseRepo, enrollmentRepo, metricsSvc, clk, cfg.Enrollment.ReconcileInterval, logr)

	// Handlers.
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, eligibilitySvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, cfg.Storage.MaxFileSize)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, cfg.Storage.MaxFileSize)
	categoryHandler := handler.NewCategoryHandler(categorySvc)
	studentHandler := handler.NewStudentHandler(studentSvc, cfg.Storage.MaxFileSize)
	fileHandler := handler.NewFileHandler(signer, fileStore)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	admin := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleModerator)
	superAdmin := middleware.RequireRoles(models.RoleSuperAdmin)

	// Categories.
	api.GET("/categories", categoryHandler.List)
	api.GET("/categories/:id", categoryHandler.Get)
	authed.POST("/categories", superAdmin, categoryHandler.Create)
	authed.PUT("/categories/reorder", superAdmin, categoryHandler.Reorder)

	// Courses.
	api.GET("/courses", courseHandler.List)
	api.GET("/courses/:id", courseHandler.Get)
	authed.POST("/courses", admin, courseHandler.Create)
	authed.PUT("/courses/:id", admin, courseHandler.Update)
	authed.PUT("/courses/:id/cover", admin, courseHandler.SetCoverPhoto)
	authed.DELETE("/courses/:id", superAdmin, courseHandler.Delete)

	// Enrollments.
	authed.GET("/enrollments", admin, enrollmentHandler.List)
	authed.POST("/enrollments", enrollmentHandler.Create)
	authed.POST("/enrollments/eligibility", enrollmentHandler.CheckEligibility)
	authed.PUT("/enrollments/:id/move-to-enrolled", admin, enrollmentHandler.MoveToEnrolled)
	authed.GET("/courses/:id/enrollments/counts", admin, enrollmentHandler.Counts)
	authed.GET("/courses/:id/enrollments/export", admin, enrollmentHandler.ExportRoster)

	// Payments.
	authed.POST("/enrollments/:id/payment-proof", paymentHandler.UploadProof)
	authed.PUT("/enrollments/:id/payment/accept", admin, paymentHandler.Accept)
	authed.PUT("/enrollments/:id/payment/reject", admin, paymentHandler.Reject)

	// Attendance and certificates.
	authed.PUT("/courses/:id/attendance", admin, certificateHandler.MarkAttendance)
	authed.POST("/courses/:id/certificates", admin, certificateHandler.Issue)
	authed.GET("/courses/:id/certificates/preview", admin, certificateHandler.Preview)

	// Students.
	authed.GET("/students", admin, studentHandler.List)
	authed.GET("/students/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleModerator), "SELF"), studentHandler.Get)
	authed.PUT("/students/:id/verification", admin, studentHandler.SetVerification)
	authed.PUT("/students/:id/course-history", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleModerator), "SELF"), studentHandler.UpsertCourseHistory)

	// Files.
	authed.POST("/files/sign", admin, fileHandler.Sign)
	api.GET("/files/download", fileHandler.Download)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()
	reconcilerSvc.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
