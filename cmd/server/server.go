package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/thereayou/campus-chat/internal/broker"
	"github.com/thereayou/campus-chat/internal/config"
	"github.com/thereayou/campus-chat/internal/database"
	"github.com/thereayou/campus-chat/internal/handlers"
	"github.com/thereayou/campus-chat/internal/middleware"
	"github.com/thereayou/campus-chat/internal/services"
	"github.com/thereayou/campus-chat/internal/storage"
	"github.com/thereayou/campus-chat/internal/websocket"
	"github.com/thereayou/campus-chat/pkg/auth"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	cfg    *config.Config
	log    zerolog.Logger
	http   *http.Server
	db     *database.Database
	redis  *redis.Client
	broker broker.Broker
	hub    *websocket.Hub
}

func NewServer(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	dbConn := &database.Database{}
	if err := dbConn.Connect(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	b, err := newBroker(cfg, rdb, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewLocal(cfg.UploadDir, cfg.PublicURL+"/files", cfg.UploadMaxBytes)
	if err != nil {
		return nil, err
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	blacklist := services.NewRedisBlacklist(rdb)
	hub := websocket.NewHub(log)

	authSvc := services.NewAuthService(dbConn, jwtMgr, blacklist)
	chatSvc := services.NewChatService(dbConn, b, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.Metrics())
	router.MaxMultipartMemory = cfg.UploadMaxBytes

	s := &Server{cfg: cfg, log: log, db: dbConn, redis: rdb, broker: b, hub: hub}
	APIEndpoints(router, routes{
		auth:      handlers.NewAuthHandler(authSvc),
		users:     handlers.NewUserHandler(dbConn),
		rooms:     handlers.NewRoomHandler(chatSvc),
		msgs:      handlers.NewMessageHandler(chatSvc),
		uploads:   handlers.NewUploadHandler(chatSvc, store),
		ws:        handlers.NewWebSocketHandler(hub, originChecker(cfg.CORSOrigins), log),
		jwt:       jwtMgr,
		blacklist: blacklist,
		filesDir:  store.Dir(),
		health:    s.health,
	})

	s.http = &http.Server{
		Addr: ":" + cfg.Port,
		Handler: cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		})(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func newBroker(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (broker.Broker, error) {
	switch cfg.FeedBroker {
	case "local", "":
		return broker.NewLocal(), nil
	case "redis":
		return broker.NewRedis(rdb, log), nil
	case "nats":
		return broker.DialNATS(cfg.NATSURL, log)
	default:
		return nil, fmt.Errorf("unknown FEED_BROKER %q", cfg.FeedBroker)
	}
}

// originChecker returns nil, accepting any origin, when "*" is configured.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"status": "ok", "online_users": len(s.hub.GetOnlineUsers())}
	code := http.StatusOK
	if err := s.redis.Ping(ctx).Err(); err != nil {
		status["status"], status["redis"] = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := s.db.Ping(ctx); err != nil {
		status["status"], status["database"] = "degraded", "unreachable"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()
	if err := s.broker.Subscribe(ctx, s.hub.Deliver); err != nil {
		return fmt.Errorf("subscribe to feed broker: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("port", s.cfg.Port).Str("broker", s.cfg.FeedBroker).Msg("server starting")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	s.hub.Stop()
	s.broker.Close()
	s.redis.Close()
	s.db.Close()
	return err
}
