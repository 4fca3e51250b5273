package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-support-chat/internal/archive"
	"github.com/weiawesome/wes-support-chat/internal/auth"
	"github.com/weiawesome/wes-support-chat/internal/cache"
	"github.com/weiawesome/wes-support-chat/internal/config"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	supportgrpc "github.com/weiawesome/wes-support-chat/internal/grpc"
	"github.com/weiawesome/wes-support-chat/internal/handler"
	"github.com/weiawesome/wes-support-chat/internal/hub"
	"github.com/weiawesome/wes-support-chat/internal/idgen"
	"github.com/weiawesome/wes-support-chat/internal/repository"
	"github.com/weiawesome/wes-support-chat/internal/service"
	"github.com/weiawesome/wes-support-chat/pkg/database"
	"github.com/weiawesome/wes-support-chat/pkg/jwt"
	pkglog "github.com/weiawesome/wes-support-chat/pkg/log"
	"github.com/weiawesome/wes-support-chat/pkg/middleware"
	"github.com/weiawesome/wes-support-chat/pkg/pubsub"
	"github.com/weiawesome/wes-support-chat/pkg/storage"
)

const usage = `usage: support-chat [command] [flags]

commands:
  serve   run the websocket gateway and REST API (default)
  token   issue a storefront token for local testing
  user    create or update a support identity
`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: cfg.Log.ServiceName,
	})
	logger := pkglog.L()

	switch cmd {
	case "serve":
		err = serve(cfg, logger)
	case "token":
		err = issueToken(cfg, args)
	case "user":
		err = upsertUser(cfg, logger, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", cmd).Msg("command failed")
	}
}

func openDatabase(cfg *config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := database.New(cfg.Database.DatabaseOptions())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")
	return db, nil
}

func serve(cfg *config.Config, logger zerolog.Logger) error {
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize repositories
	userRepo := repository.NewGormUserRepository(db)
	sessionRepo := repository.NewGormSessionRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)
	notificationRepo := repository.NewGormNotificationRepository(db)

	// Initialize Redis identity cache
	var identityCache cache.IdentityCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisIdentityCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, identity cache disabled")
		} else {
			defer redisCache.Close()
			identityCache = redisCache
			logger.Info().Str("address", cfg.Redis.Address).Msg("redis cache connected")
		}
	}

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("jwt manager: %w", err)
	}
	authenticator := auth.NewAuthenticator(tokens, userRepo, identityCache, cfg.Cache.TTL)

	// Initialize event bus
	publisher, err := pubsub.NewPublisher(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("session event bus ready")

	// Initialize transcript archive
	var archiver service.Archiver
	if cfg.Archive.Enabled {
		store, err := storage.New(context.Background(), cfg.Archive.Storage)
		if err != nil {
			return fmt.Errorf("archive storage: %w", err)
		}
		archiver = archive.NewArchiver(store, messageRepo, cfg.Archive.Prefix, cfg.Archive.Timeout)
		logger.Info().Str("driver", cfg.Archive.Storage.Driver).Msg("transcript archive enabled")
	}

	// Initialize Hub and services
	wsHub := hub.NewHub()
	ids := idgen.NewULIDGenerator()
	notifier := service.NewNotificationService(wsHub, notificationRepo, ids, cfg.Chat.NotificationURL)
	chatSvc := service.NewChatService(wsHub, sessionRepo, messageRepo, notifier, publisher, archiver, ids, cfg.Chat)

	ping := func(ctx context.Context) error {
		return database.Ping(db.WithContext(ctx))
	}

	// Start gRPC health server
	var grpcServer *supportgrpc.HealthServer
	if cfg.GRPC.Enabled {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		grpcServer, err = supportgrpc.StartHealthServer(grpcAddr, logger, ping, 10*time.Second)
		if err != nil {
			return err
		}
	}

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	handler.NewHTTPHandler(chatSvc, notifier, middleware.NewAuthMiddleware(tokens), authenticator, ping).RegisterRoutes(r)

	mux := http.NewServeMux()
	handler.NewWSHandler(wsHub, chatSvc, authenticator, cfg.WebSocket).RegisterRoutes(mux, logger)
	mux.Handle("/", r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("support-chat listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down support-chat")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	wsHub.CloseAll()
	if err := chatSvc.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop chat service")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	logger.Info().Msg("support-chat stopped")
	return nil
}

func issueToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user", "", "identity id (required)")
	name := fs.String("name", "", "username claim")
	role := fs.String("role", "", "role claim, informational only")
	ttl := fs.Duration("ttl", cfg.Auth.TokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		fs.Usage()
		return errors.New("--user is required")
	}

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	token, expiresAt, err := tokens.IssueWithTTL(*userID, *name, *role, *ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func upsertUser(cfg *config.Config, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("user", flag.ExitOnError)
	id := fs.String("id", "", "identity id (required)")
	name := fs.String("name", "", "display name (required)")
	roleFlag := fs.String("role", string(domain.RoleCustomer), "customer or agent")
	email := fs.String("email", "", "contact email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *name == "" {
		fs.Usage()
		return errors.New("--id and --name are required")
	}
	role, err := domain.ParseRole(*roleFlag)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	identity := &domain.Identity{ID: *id, DisplayName: *name, Role: role}
	if err := repository.NewGormUserRepository(db).Upsert(ctx, identity, *email); err != nil {
		return err
	}
	logger.Info().Str(pkglog.FieldUserID, *id).Str(pkglog.FieldRole, string(role)).Msg("identity saved")
	return nil
}
