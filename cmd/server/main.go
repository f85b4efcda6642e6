package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"netchat/internal/chat"
	"netchat/internal/config"
	"netchat/internal/db"
	myMiddleware "netchat/internal/middleware"
	"netchat/internal/user"
)

func main() {
	// 1. Config & Flags
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "http service address (overrides config)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("❌ Failed to load config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("❌ Invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("❌ Server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database (Platform Layer)
	if err := db.Migrate(cfg.Database.DSN, logger); err != nil {
		return err
	}
	database, err := db.NewDatabase(ctx, cfg.Database.DSN, db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("✅ Connected to PostgreSQL")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}
	logger.Info("✅ Connected to Redis")

	// 4. Initialize User Feature (the Identity Provider)
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, user.NewRedisRevoker(redisClient), user.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		TokenTTL: cfg.Auth.TokenTTL,
	}, logger)
	userHandler := user.NewHandler(userService, logger)

	// 5. Initialize Chat Feature
	router := chat.NewRouter(cfg.Chat.HistoryLimit, logger.With("component", "router"))
	hub := chat.NewHub(router, chat.Options{
		MaxMessageSize:   cfg.Chat.MaxMessageSize,
		SendBuffer:       cfg.Chat.SendBuffer,
		TypingTimeout:    cfg.Chat.TypingTimeout,
		RoomListInterval: cfg.Chat.RoomListInterval,
		RateBurst:        cfg.Chat.RateLimit.Burst,
		RateInterval:     cfg.Chat.RateLimit.Interval,
	}, logger.With("component", "hub"))
	chatHandler := chat.NewHandler(hub, chat.NewOriginPolicy(cfg.Server.AllowedOrigins, logger), logger)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService, logger)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/healthz", healthHandler(database, redisClient))

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/auth/profile", userHandler.Profile)
		r.Post("/api/auth/logout", userHandler.Logout)
		r.Get("/api/users/search", userHandler.SearchUsers)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Get("/api/rooms", chatHandler.GetRooms)
		r.Get("/api/rooms/{name}/messages", chatHandler.GetRoomMessages)
		r.Get("/api/online", chatHandler.GetOnline)
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 7. Start the Hub and the HTTP server; stop both on signal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("🚀 Server starting", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func healthHandler(database *db.Database, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok", "postgres": "ok", "redis": "ok"}
		code := http.StatusOK
		if err := database.Ping(ctx); err != nil {
			status["postgres"], status["status"], code = err.Error(), "degraded", http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			status["redis"], status["status"], code = err.Error(), "degraded", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
