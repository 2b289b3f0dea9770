package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutorhub-api/api/swagger"
	"github.com/noah-isme/tutorhub-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/cache"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	"github.com/noah-isme/tutorhub-api/pkg/database"
	"github.com/noah-isme/tutorhub-api/pkg/errreport"
	"github.com/noah-isme/tutorhub-api/pkg/fieldcrypt"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/logger"
	"github.com/noah-isme/tutorhub-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/tutorhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutorhub-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
	"github.com/noah-isme/tutorhub-api/pkg/zoom"
)

const version = "1.0.0"

// @title TutorHub API
// @version 1.0.0
// @description Tutoring marketplace backend: teacher availability, free-trial assessments with Zoom meetings, class bookings and notifications.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter := errreport.New(cfg, version)
	defer reporter.Close()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	mongoClient, mongoDB, err := database.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		logr.Fatal("failed to connect mongo", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background()) //nolint:errcheck

	// Redis backs chat, the pricing cache and scheduling locks; without it those degrade.
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache, chat and scheduling locks", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var cipher repository.FieldCipher
	if cfg.Encryption.FieldKey != "" {
		c, err := fieldcrypt.New(cfg.Encryption.FieldKey)
		if err != nil {
			logr.Fatal("invalid field encryption key", zap.Error(err))
		}
		cipher = c
	} else if cfg.Env == config.EnvProduction {
		logr.Fatal("FIELD_ENCRYPTION_KEY is required in production")
	} else {
		logr.Warn("field encryption disabled, teacher contact details are stored in plaintext")
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	teacherRepo := repository.NewTeacherRepository(db, cipher, logr)
	adminRepo := repository.NewAdminRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	resetRepo := repository.NewPasswordResetRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	classRequestRepo := repository.NewClassRequestRepository(db)
	pricingRepo := repository.NewPricingRepository(db)
	contactRepo := repository.NewContactRepository(mongoDB)
	if err := contactRepo.EnsureIndexes(ctx); err != nil {
		logr.Warn("failed to ensure contact indexes", zap.Error(err))
	}

	var (
		cacheRepo  service.CacheRepository
		chatStore  service.ChatSessionStore
		lockStore  service.SchedulingLocker
		redisReady = redisClient != nil
	)
	if redisReady {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix)
		chatStore = repository.NewChatSessionRepository(redisClient, cfg.Redis.KeyPrefix)
		lockStore = repository.NewSchedulingLockRepository(redisClient, cfg.Redis.KeyPrefix)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Pricing.CacheTTL, logr, redisReady)

	mailTransport, err := mailer.New(cfg.Mail, logr)
	if err != nil {
		logr.Fatal("failed to init mailer", zap.Error(err))
	}
	notifier := service.NewNotificationService(mailTransport, metricsSvc, logr, service.NotificationConfig{
		AdminRecipient: cfg.Mail.AdminRecipient,
		PublicAppURL:   cfg.Mail.PublicAppURL,
		SiteName:       cfg.Mail.FromName,
	})
	mailQueue := jobs.NewQueue("notifications", notifier.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnGiveUp:   notifier.GiveUp,
	})
	mailQueue.Start(ctx)
	notifier.UseQueue(mailQueue)

	var provisioner service.MeetingProvisioner = zoom.Disabled{}
	if cfg.Zoom.Enabled() {
		provisioner = zoom.NewClient(cfg.Zoom, logr)
	} else {
		logr.Warn("zoom credentials missing, assessment approval will fail with UPSTREAM_ERROR")
	}

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to init upload storage", zap.Error(err))
	}
	exports, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	availabilitySvc := service.NewAvailabilityService(availabilityRepo, classRequestRepo, assessmentRepo, teacherRepo, validate, metricsSvc, logr, service.AvailabilityConfig{
		EnforceWindows:         cfg.Scheduling.EnforceWindows,
		DefaultMeetingDuration: cfg.Scheduling.DefaultMeetingDuration,
		DefaultClassDuration:   cfg.Scheduling.DefaultClassDuration,
	})
	importSvc := service.NewAvailabilityImportService(availabilityRepo, teacherRepo, uploads, metricsSvc, logr, service.ImportConfig{
		MaxBytes: cfg.Uploads.MaxCSVBytes,
		Archive:  cfg.Uploads.ArchiveFiles,
	})
	exportSvc := service.NewExportService(availabilityRepo, exports, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)
	pricingSvc := service.NewPricingService(pricingRepo, cacheSvc, validate, logr, cfg.Pricing.CacheTTL)
	assessmentSvc := service.NewAssessmentService(assessmentRepo, teacherRepo, availabilitySvc, provisioner, lockStore, notifier, validate, metricsSvc, logr, service.AssessmentConfig{
		DefaultDuration: cfg.Scheduling.DefaultMeetingDuration,
		Timezone:        cfg.Scheduling.Timezone,
		LockTTL:         cfg.Scheduling.LockTTL,
	})
	classRequestSvc := service.NewClassRequestService(classRequestRepo, teacherRepo, pricingSvc, availabilitySvc, lockStore, notifier, validate, logr, service.ClassRequestConfig{
		LockTTL:     cfg.Scheduling.LockTTL,
		ReceiptName: cfg.Mail.FromName,
	})
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	contactSvc := service.NewContactService(contactRepo, notifier, validate, logr)
	chatSvc := service.NewChatService(chatStore, pricingSvc, validate, logr, service.ChatConfig{
		SessionTTL:  cfg.Chat.SessionTTL,
		MaxSessions: cfg.Chat.MaxSessions,
		MaxMessages: cfg.Chat.MaxMessages,
		SiteName:    cfg.Mail.FromName,
	})
	authSvc := service.NewAuthService(map[models.UserRole]service.PrincipalStore{
		models.RoleAdmin:   service.AdminPrincipals(adminRepo),
		models.RoleTeacher: service.TeacherPrincipals(teacherRepo),
		models.RoleStudent: service.StudentPrincipals(studentRepo),
	}, studentRepo, resetRepo, notifier, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"mongo":    func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
	}
	if redisReady {
		checks["redis"] = func(ctx context.Context) error { return pingRedis(ctx, redisClient) }
	}

	r := gin.New()
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(errreport.Middleware(reporter, logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	handler.RegisterRoutes(r, cfg.APIPrefix, authSvc, handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Teachers:      handler.NewTeacherHandler(teacherSvc),
		Availability:  handler.NewAvailabilityHandler(availabilitySvc, importSvc, exportSvc),
		Assessments:   handler.NewAssessmentHandler(assessmentSvc),
		ClassRequests: handler.NewClassRequestHandler(classRequestSvc),
		Pricing:       handler.NewPricingHandler(pricingSvc),
		Contact:       handler.NewContactHandler(contactSvc),
		Chat:          handler.NewChatHandler(chatSvc),
		Metrics:       handler.NewMetricsHandler(metricsSvc, checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	go sweepExports(ctx, exportSvc, cfg.Exports.SignedURLTTL, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	mailQueue.Stop(shutdownCtx)
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// sweepExports removes export files whose download links have expired.
func sweepExports(ctx context.Context, exports *service.ExportService, ttl time.Duration, logr *zap.Logger) {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(ttl)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
