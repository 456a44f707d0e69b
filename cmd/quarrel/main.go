package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quarrel-chat/quarrel-server/internal/api"
	"github.com/quarrel-chat/quarrel-server/internal/attachment"
	"github.com/quarrel-chat/quarrel-server/internal/auth"
	"github.com/quarrel-chat/quarrel-server/internal/channel"
	"github.com/quarrel-chat/quarrel-server/internal/config"
	"github.com/quarrel-chat/quarrel-server/internal/gateway"
	"github.com/quarrel-chat/quarrel-server/internal/guild"
	"github.com/quarrel-chat/quarrel-server/internal/httputil"
	"github.com/quarrel-chat/quarrel-server/internal/member"
	"github.com/quarrel-chat/quarrel-server/internal/message"
	"github.com/quarrel-chat/quarrel-server/internal/postgres"
	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
	"github.com/quarrel-chat/quarrel-server/internal/user"
	"github.com/quarrel-chat/quarrel-server/internal/valkey"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().Str("env", cfg.ServerEnv).Msg("Starting Quarrel Server")

	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard \"*\". Set an explicit origin for production deployments.")
	}

	ctx := context.Background()

	// Connect PostgreSQL
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	// Run migrations
	if err := postgres.Migrate(cfg.DatabaseURL, log.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	// Connect Valkey
	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Valkey connected")

	// Connect MinIO and ensure the attachments bucket exists
	objects, err := attachment.NewStore(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
	if err != nil {
		return fmt.Errorf("connect minio: %w", err)
	}
	log.Info().Str("bucket", cfg.MinIOBucket).Msg("Object storage ready")

	ids := snowflake.NewGenerator(cfg.SnowflakeMachineID, cfg.SnowflakeProcessID)

	// Repositories
	userRepo := user.NewPGRepository(db, log.Logger)
	guildRepo := guild.NewPGRepository(db, log.Logger)
	channelRepo := channel.NewPGRepository(db, log.Logger)
	memberRepo := member.NewPGRepository(db, log.Logger)
	messageRepo := message.NewPGRepository(db, log.Logger)
	attachmentRepo := attachment.NewPGRepository(db, log.Logger)
	presenceStore := presence.NewStore(db)

	// Auth service
	authService := auth.NewService(userRepo, rdb, cfg, ids, log.Logger)

	// Gateway
	registry := gateway.NewRegistry(log.Logger)
	validator := func(token string) (snowflake.UserID, error) {
		claims, err := auth.ValidateAccessToken(token, cfg.JWTSecret, cfg.ServerName)
		if err != nil {
			return 0, err
		}
		return auth.UserIDFromClaims(claims)
	}
	hub := gateway.NewHub(registry, cfg, validator, userRepo, guildRepo, channelRepo, memberRepo, presenceStore, log.Logger)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:   cfg.ServerName,
		BodyLimit: cfg.BodyLimitBytes(),
		// ErrorHandler catches errors returned by handlers that are not already mapped to structured API responses
		// (e.g. Fiber's built-in 404/405). errors.AsType is a generic helper added in Go 1.26.
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			code := httputil.CodeInternal
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				status = e.Code
				message = e.Message
				code = fiberStatusToCode(e.Code)
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{
					Code:    code,
					Message: message,
				},
			})
		},
	})

	// Global middleware
	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger, cfg.LogHealthRequests))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  []string{cfg.CORSAllowOrigins},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))

	// Global API rate limiter
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitAPIRequests,
		Expiration: time.Duration(cfg.RateLimitAPIWindowSeconds) * time.Second,
	}))

	registerRoutes(app, cfg, registry, hub, ids, routeRepos{
		users:       userRepo,
		guilds:      guildRepo,
		channels:    channelRepo,
		members:     memberRepo,
		messages:    messageRepo,
		attachments: attachmentRepo,
		objects:     objects,
		auth:        authService,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		hub.Shutdown()
		_ = app.Shutdown()
	}()

	// Listen
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Server listening")
	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// routeRepos bundles the data-layer dependencies handed to registerRoutes.
type routeRepos struct {
	users       user.Repository
	guilds      guild.Repository
	channels    channel.Repository
	members     member.Repository
	messages    message.Repository
	attachments attachment.Repository
	objects     *attachment.Store
	auth        *auth.Service
}

func registerRoutes(
	app *fiber.App,
	cfg *config.Config,
	registry *gateway.Registry,
	hub *gateway.Hub,
	ids *snowflake.Generator,
	repos routeRepos,
) {
	health := api.NewHealthHandler(registry)
	app.Get("/api/v1/health", health.Health)

	gatewayHandler := api.NewGatewayHandler(hub)
	app.Get("/api/v1/gateway", gatewayHandler.Upgrade)

	authHandler := api.NewAuthHandler(repos.auth, log.Logger)

	// Auth routes with stricter rate limiting
	authGroup := app.Group("/api/v1/auth")
	authGroup.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitAuthCount,
		Expiration: time.Duration(cfg.RateLimitAuthWindowSeconds) * time.Second,
	}))
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)

	// Protected routes
	protected := app.Group("/api/v1", auth.RequireAuth(cfg.JWTSecret, cfg.ServerName))
	protected.Post("/auth/logout", authHandler.Logout)

	userHandler := api.NewUserHandler(repos.users, registry, log.Logger)
	protected.Get("/users/@me", userHandler.GetMe)
	protected.Patch("/users/@me", userHandler.UpdateMe)

	guildHandler := api.NewGuildHandler(repos.guilds, repos.members, repos.channels, registry, ids, log.Logger)
	protected.Get("/guilds", guildHandler.ListGuilds)
	protected.Post("/guilds", guildHandler.CreateGuild)
	protected.Get("/guilds/:guildID", guildHandler.GetGuild)
	protected.Delete("/guilds/:guildID", guildHandler.DeleteGuild)
	protected.Post("/guilds/:guildID/members", guildHandler.JoinGuild)
	protected.Delete("/guilds/:guildID/members/@me", guildHandler.LeaveGuild)

	channelHandler := api.NewChannelHandler(repos.channels, repos.members, registry, ids, log.Logger)
	protected.Get("/guilds/:guildID/channels", channelHandler.ListChannels)
	protected.Post("/guilds/:guildID/channels", channelHandler.CreateChannel)
	protected.Delete("/channels/:channelID", channelHandler.DeleteChannel)

	messageHandler := api.NewMessageHandler(repos.messages, repos.channels, repos.members, registry, ids, cfg.MaxMessageLength, log.Logger)
	protected.Get("/channels/:channelID/messages", messageHandler.ListMessages)
	protected.Post("/channels/:channelID/messages", messageHandler.CreateMessage)

	attachmentHandler := api.NewAttachmentHandler(repos.attachments, repos.objects, repos.messages, repos.channels, repos.members, log.Logger)
	protected.Post("/channels/:channelID/messages/:messageID/attachments", attachmentHandler.Upload)
	protected.Get("/channels/:channelID/messages/:messageID/attachments/:attachmentID", attachmentHandler.Download)
}

// fiberStatusToCode maps an HTTP status from Fiber's built-in errors to the
// closest API error code.
func fiberStatusToCode(status int) httputil.Code {
	switch {
	case status == fiber.StatusNotFound:
		return httputil.CodeNotFound
	case status == fiber.StatusTooManyRequests:
		return httputil.CodeRateLimited
	case status == fiber.StatusRequestEntityTooLarge:
		return httputil.CodeTooLarge
	case status >= 400 && status < 500:
		return httputil.CodeBadRequest
	default:
		return httputil.CodeInternal
	}
}
