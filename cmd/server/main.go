package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/address"
	"github.com/troikatech/cab-voice-agent/internal/api/handlers"
	"github.com/troikatech/cab-voice-agent/internal/booking"
	"github.com/troikatech/cab-voice-agent/internal/failsafe"
	"github.com/troikatech/cab-voice-agent/internal/fare"
	"github.com/troikatech/cab-voice-agent/internal/livestate"
	"github.com/troikatech/cab-voice-agent/internal/realtime"
	"github.com/troikatech/cab-voice-agent/internal/session"
	"github.com/troikatech/cab-voice-agent/internal/store"
	"github.com/troikatech/cab-voice-agent/internal/transcript"
	"github.com/troikatech/cab-voice-agent/pkg/ai"
	"github.com/troikatech/cab-voice-agent/pkg/auth"
	"github.com/troikatech/cab-voice-agent/pkg/env"
	"github.com/troikatech/cab-voice-agent/pkg/logger"
	"github.com/troikatech/cab-voice-agent/pkg/middleware"
	"github.com/troikatech/cab-voice-agent/pkg/mongo"
	"github.com/troikatech/cab-voice-agent/pkg/otel"
)

const serviceName = "cab-voice-agent"

// drainTimeout bounds how long shutdown waits for live calls to end.
const drainTimeout = 20 * time.Second

type server struct {
	cfg         *env.Config
	redisClient *redis.Client
	issuer      *auth.Issuer
	handler     *handlers.Handler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing(serviceName, "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown(context.Background())
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting cab voice agent",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	db := store.New(mongoClient, logger.Log)
	if err := db.EnsureIndexes(ctx); err != nil {
		logger.Log.Warn("Failed to ensure indexes", zap.Error(err))
	}

	registry := session.NewRegistry()
	live := livestate.NewRedisSink(redisClient, time.Duration(cfg.LiveStateTTLSec)*time.Second)
	newSession := sessionFactory(cfg, db, live)

	s := &server{
		cfg:         cfg,
		redisClient: redisClient,
		issuer:      auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		handler: handlers.NewHandler(cfg, handlers.Deps{
			Checks: map[string]handlers.Pinger{
				"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
				"database": mongoClient.Ping,
			},
			Bookings:   db,
			Snapshots:  live,
			Registry:   registry,
			NewSession: newSession,
		}, logger.Log),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           s.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...", zap.Int("live_sessions", registry.Len()))
	s.handler.Drain()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelShutdown()

	// Hijacked websocket connections are not tracked by Shutdown, so live
	// calls are ended through the registry.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	registry.CancelAll()
	if err := registry.Wait(shutdownCtx); err != nil {
		logger.Log.Warn("Live sessions did not end in time", zap.Int("remaining", registry.Len()))
	}

	logger.Log.Info("Server exited")
}

// sessionFactory wires the per-call collaborators shared by every session.
func sessionFactory(cfg *env.Config, db *store.Store, live livestate.Sink) handlers.SessionFactory {
	extractTimeout := time.Duration(cfg.ExtractorTimeoutMs) * time.Millisecond

	var providers []ai.Provider
	if cfg.OpenAIApiKey != "" {
		providers = append(providers, ai.NewOpenAIProvider(cfg.OpenAIApiKey, cfg.OpenAIModel, cfg.OpenAIMaxTokens, extractTimeout, logger.Log))
	}
	if cfg.AnthropicApiKey != "" {
		providers = append(providers, ai.NewAnthropicProvider(cfg.AnthropicApiKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens, extractTimeout, logger.Log))
	}
	if len(providers) == 0 {
		logger.Log.Warn("No extraction provider configured; bookings cannot be captured")
	}
	extractor := booking.NewAIExtractor(ai.NewManager(providers, logger.Log), extractTimeout)

	resolver := address.NewHTTPResolver(cfg.AddressResolverURL, cfg.CollaboratorTimeout, cfg.ResolverCacheSize, cfg.ResolverCacheTTL)
	pipeline := booking.NewPipeline(extractor, resolver, logger.Log)

	var fares fare.Quoter
	if cfg.FareServiceURL != "" {
		fares = fare.NewHTTPQuoter(cfg.FareServiceURL, cfg.CollaboratorTimeout)
	}

	rt := realtime.Config{URL: cfg.RealtimeURL, Model: cfg.RealtimeModel, APIKey: cfg.OpenAIApiKey}
	dial := func(ctx context.Context, sc realtime.SessionConfig) (session.Model, error) {
		conn, err := realtime.Dial(ctx, rt, sc, logger.Log)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	sessionCfg := session.Config{
		CompanyName:          cfg.CompanyName,
		Voice:                cfg.RealtimeVoice,
		TranscriptionModel:   cfg.TranscriptionModel,
		VADThreshold:         cfg.VADThreshold,
		VADSilenceMs:         cfg.VADSilenceMs,
		TranscriptGrace:      cfg.TranscriptGrace,
		AudioGrace:           cfg.AudioGrace,
		ProfileLookupTimeout: cfg.ProfileLookupTimeout,
		CollaboratorTimeout:  cfg.CollaboratorTimeout,
		MaxClarifications:    cfg.MaxClarifications,
		HighFareThreshold:    cfg.HighFareThreshold,
		Failsafe: failsafe.Config{
			NoReply:        cfg.NoReplyTimeout,
			FollowUp:       cfg.FollowUpSilence,
			Goodbye:        cfg.GoodbyeFailsafe,
			Silence:        cfg.SilenceFailsafe,
			RecentActivity: cfg.RecentActivityWindow,
			MaxReprompts:   cfg.MaxReprompts,
		},
		Filter: transcript.Config{PhantomWindow: cfg.PhantomWindow},
	}

	return func(callID, channel string, caller session.Caller) *session.Session {
		return session.New(callID, channel, caller, sessionCfg, session.Deps{
			Dial:     dial,
			Pipeline: pipeline,
			Resolver: resolver,
			Fares:    fares,
			Store:    db,
			Live:     live,
			Log:      logger.Log,
		})
	}
}

func (s *server) setupRouter() *gin.Engine {
	if s.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20))
	router.Use(middleware.RequestMetrics())

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	if s.cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = splitOrigins(s.cfg.CORSAllowedOrigins)
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(s.redisClient, s.cfg.APIRateLimitRPM, logger.Log)

	router.GET("/health", s.handler.HealthCheck)
	router.GET("/metrics", s.handler.GetMetrics)
	router.GET("/metrics/prometheus", s.handler.GetPrometheusMetrics)

	// Telephony voicebot endpoints (public, called by the provider)
	router.GET("/voicebot/init", s.handler.VoicebotInit)
	router.POST("/voicebot/init", s.handler.VoicebotInit)
	router.GET("/voicebot/ws", s.handler.VoicebotWebSocket)

	// Web callers present a token minted by cmd/issue-token
	router.GET("/ws/web", middleware.AuthMiddleware(s.issuer), s.handler.WebCallWebSocket)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(s.issuer))
	api.Use(middleware.RoleMiddleware(auth.RoleOperator))
	api.Use(rateLimiter.Middleware())
	{
		api.GET("/bookings", s.handler.ListBookings)
		api.GET("/bookings/:id", s.handler.GetBooking)
		api.GET("/sessions", s.handler.ListSessions)
		api.GET("/sessions/:id", s.handler.GetSession)
	}

	return router
}

func splitOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = []string{"http://localhost:3000"}
	}
	return out
}
