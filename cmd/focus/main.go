// Command focus runs the conference-focus process: the HTTP/WebSocket edge,
// the per-room signaling orchestrator, and the background workers that keep
// them converged (6. EXTERNAL INTERFACES).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/auth"
	"github.com/relaymeet/focus/internal/v1/bridge"
	"github.com/relaymeet/focus/internal/v1/bus"
	"github.com/relaymeet/focus/internal/v1/chatroom"
	"github.com/relaymeet/focus/internal/v1/conference"
	"github.com/relaymeet/focus/internal/v1/config"
	"github.com/relaymeet/focus/internal/v1/health"
	"github.com/relaymeet/focus/internal/v1/iqrouter"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/middleware"
	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/ratelimit"
	"github.com/relaymeet/focus/internal/v1/store"
	"github.com/relaymeet/focus/internal/v1/tracing"
	"github.com/relaymeet/focus/internal/v1/transport"
	"github.com/relaymeet/focus/pkg/avclient"
	"github.com/relaymeet/focus/pkg/bridgeclient"
	"github.com/relaymeet/focus/pkg/reservation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		return fmt.Errorf("environment validation failed: %w", err)
	}

	if err := logging.Initialize(cfg.LogLevel == "debug"); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	ctx := context.Background()
	if cfg.OTelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "focus", cfg.OTelCollectorAddr)
		if err != nil {
			logging.Warn(ctx, "tracing disabled: failed to initialize", zap.Error(err))
		} else {
			defer func() { _ = tp.Shutdown(context.Background()) }()
		}
	}

	clock := model.SystemClock{}

	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, "")
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logging.Info(ctx, "connected to redis for cross-instance roster fan-out")
	}

	authority, tokenValidator, err := buildAuthority(ctx, cfg, clock)
	if err != nil {
		return fmt.Errorf("failed to build authentication authority: %w", err)
	}

	bridgePool := bridgeclient.NewPool()
	selector := bridge.New(cfg.LocalRegion, clock, bridgePool.Probe)
	avRouter := buildAVRouter(cfg)
	rooms := newRoomRegistry()

	var reservationGate model.ReservationGate
	if cfg.ReservationBaseURL != "" {
		reservationGate = reservation.New(cfg.ReservationBaseURL)
		logging.Info(ctx, "reservation gate enabled", zap.String("baseURL", cfg.ReservationBaseURL))
	}
	origins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	disp := &dispatcher{
		authority:    authority,
		authRequired: cfg.AuthMode != "none",
		newMeetingID: func() model.MeetingID { return model.MeetingID(uuid.NewString()) },
	}
	router := iqrouter.New(disp.global, disp.dispatchMap())

	var redisClient *redis.Client
	if busService != nil {
		redisClient = busService.Client()
	}
	limiter, err := ratelimit.NewRateLimiter(cfg, redisClient, tokenValidator)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	hub := transport.NewHub(authority, router, origins, limiter)
	hub.OnConnect = rooms.handleConnect
	hub.OnDisconnect = rooms.handleDisconnect

	factory := func(room model.RoomName, meetingID model.MeetingID) (store.Conference, error) {
		chatRoom := chatroom.New(room, busService)
		rooms.register(room.Bare(), chatRoom)

		c := conference.New(conference.Config{
			Room:         room,
			MeetingID:    meetingID,
			Adapter:      chatRoom,
			Selector:     selector,
			BridgeClient: bridgePool,
			Sessions:     hub.SessionFactoryFor(room),
			Catalogue:    conference.DefaultCatalogue(),
			Quota:        model.Quota{MaxAudio: 1, MaxVideo: 1},
			Clock:        clock,
			LocalRegion:  cfg.LocalRegion,
			AVClient:     avRouter,
			Reservation:  reservationGate,
			OnTerminated: func(r model.RoomName) {
				rooms.unregister(r.Bare())
				router.CloseQueue(r)
			},
		})
		go c.Run()
		if err := c.Join(context.Background()); err != nil {
			return nil, err
		}
		return c, nil
	}

	conferenceStore := store.New(factory, clock)
	disp.store = conferenceStore

	healthHandler := health.NewHandler(busService, cfg.BridgeRegistryAddr)
	debugHandler := health.NewDebugHandler(conferenceStore)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())
	if cfg.OTelCollectorAddr != "" {
		engine.Use(otelgin.Middleware("focus"))
	}

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = origins
	engine.Use(cors.New(corsCfg))

	engine.GET("/about/health", healthHandler.AboutHealth)
	engine.GET("/debug", debugHandler.Debug)
	engine.GET("/debug/conferences", debugHandler.Conferences)
	engine.GET("/debug/conference/:id", debugHandler.Conference)
	engine.GET("/ws/:room", hub.ServeWs)
	engine.POST("/conference-request/v1", limiter.MiddlewareForEndpoint("rooms"), newConferenceRequestHandler(disp))
	engine.POST("/login", limiter.GlobalMiddleware(), newIQHandler(router, iqrouter.ElementLogin))
	engine.POST("/logout", limiter.GlobalMiddleware(), newIQHandler(router, iqrouter.ElementLogout))

	metricsEngine := gin.New()
	metricsEngine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsEngine}

	go func() {
		logging.Info(ctx, "focus HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "HTTP server failed", zap.Error(err))
		}
	}()
	go func() {
		logging.Info(ctx, "focus metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Warn(ctx, "metrics server failed", zap.Error(err))
		}
	}()

	healthHandler.SetLifecycle(health.LifecycleReady)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")
	healthHandler.SetLifecycle(health.LifecycleShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conferenceStore.Shutdown(shutdownCtx)
	_ = hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn(ctx, "HTTP server did not shut down cleanly", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	if busService != nil {
		_ = busService.Close()
	}

	logging.Info(ctx, "focus exiting")
	return nil
}

// buildAuthority constructs the session-token authority for 4.I, plus the
// bearer-token validator the rate limiter uses to tell an authenticated
// caller from an anonymous one (ratelimit.TokenValidator). The second return
// is nil outside "external" auth mode, where there is no JWT to validate.
func buildAuthority(ctx context.Context, cfg *config.Config, clock model.Clock) (model.AuthenticationAuthority, ratelimit.TokenValidator, error) {
	switch cfg.AuthMode {
	case "external":
		validator, err := auth.NewValidator(ctx, cfg.Domain, cfg.JWKSURL)
		if err != nil {
			return nil, nil, err
		}
		return auth.NewExternalAuthority(validator, clock), validator, nil
	case "none":
		return auth.NewNoopAuthority(clock), nil, nil
	default:
		return auth.NewXMPPDomainAuthority(clock), nil, nil
	}
}

func buildAVRouter(cfg *config.Config) *avclient.Router {
	var jibri, jigasi, dial *avclient.Client
	if cfg.JibriControlURL != "" {
		jibri = avclient.New("jibri", cfg.JibriControlURL)
	}
	if cfg.JigasiControlURL != "" {
		jigasi = avclient.New("jigasi", cfg.JigasiControlURL)
	}
	if cfg.DialControlURL != "" {
		dial = avclient.New("dial", cfg.DialControlURL)
	}
	return avclient.NewRouter(jibri, jigasi, dial)
}
