package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/LetterDesk/internal/auth"
	"github.com/digkill/LetterDesk/internal/catalog"
	"github.com/digkill/LetterDesk/internal/config"
	"github.com/digkill/LetterDesk/internal/database"
	"github.com/digkill/LetterDesk/internal/httpapi"
	"github.com/digkill/LetterDesk/internal/llm"
	"github.com/digkill/LetterDesk/internal/repository"
	"github.com/digkill/LetterDesk/internal/service"
	"github.com/digkill/LetterDesk/internal/session"
	"github.com/digkill/LetterDesk/internal/storage"
	"github.com/digkill/LetterDesk/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	sessionStore, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	defer closeStore()
	sessions := session.NewManager(sessionStore)

	generator, closeGenerator, err := newGenerator(ctx, cfg, logr)
	if err != nil {
		log.Fatalf("generator: %v", err)
	}
	defer closeGenerator()

	accountRepo := repository.NewAccountRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	planRepo := repository.NewPlanRepository(db)

	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:    cfg.JWTSecret,
		AccessTTL: cfg.JWTTTL,
		Issuer:    "letterdesk",
	})
	authService := auth.NewService(accountRepo, tokens, auth.NewPasswordHasher(cfg.BcryptCost))

	templates := catalog.Default()
	planService := service.NewPlanService(cfg, planRepo)
	profileService := service.NewProfileService(profileRepo, planRepo)
	claimService := service.NewClaimService(logr, sessions, documentRepo, profileRepo, usageRepo)
	generationService := service.NewGenerationService(logr, sessions, templates, generator, documentRepo, profileRepo, claimService, cfg.GenerationTimeout)
	identityService := service.NewIdentityService(logr, sessions, authService, claimService, profileRepo, documentRepo, planService)
	unsubscribe := identityService.Start()
	defer unsubscribe()

	if _, err := planService.EnsureDefaultPlan(ctx); err != nil {
		log.Fatalf("ensure default plan: %v", err)
	}

	var uploader service.Uploader
	if cfg.ExportEnabled() {
		s3Uploader, err := storage.NewUploader(storage.Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			LinkTTL:      cfg.S3LinkTTL,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		uploader = s3Uploader
	}

	server := httpapi.NewServer(cfg.HTTPListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, httpapi.Services{
		Templates:  templates,
		Sessions:   sessions,
		Identity:   identityService,
		Generation: generationService,
		Export:     service.NewExportService(logr, sessions, uploader),
		Plans:      planService,
		Profiles:   profileService,
	})

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("http server stopped", "err", err)
	}
}

func newSessionStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	if cfg.RedisAddr == "" {
		return session.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return session.NewRedisStore(client, "", cfg.SessionTTL), func() { _ = client.Close() }, nil
}

func newGenerator(ctx context.Context, cfg config.Config, logr *slog.Logger) (service.Generator, func(), error) {
	if cfg.GenerationProvider == config.ProviderTask {
		return llm.NewTaskGenerator(llm.TaskConfig{
			APIKey:  cfg.TaskAPIKey,
			BaseURL: cfg.TaskBaseURL,
			Model:   cfg.TaskModel,
		}, logr), func() {}, nil
	}
	vertex, err := llm.NewVertexGenerator(ctx, cfg.GCPProjectID, cfg.VertexRegion, cfg.VertexModel, logr)
	if err != nil {
		return nil, nil, err
	}
	return vertex, func() { _ = vertex.Close() }, nil
}
