package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"cloud.google.com/go/firestore"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/chessengine"
	"github.com/chesscore/realtime/internal/config"
	"github.com/chesscore/realtime/internal/eventbus"
	"github.com/chesscore/realtime/internal/gamecore"
	"github.com/chesscore/realtime/internal/logger"
	"github.com/chesscore/realtime/internal/matchmaker"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/persistence"
	"github.com/chesscore/realtime/internal/socket"
	"github.com/chesscore/realtime/internal/store"
	"github.com/chesscore/realtime/internal/timemanager"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger.Initialize(logger.Config{
		Level:      "info",
		JSONFormat: cfg.IsProduction(),
	})

	var zapLogger *zap.Logger
	if cfg.IsProduction() {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("failed to connect to redis", zap.Error(err))
	}

	var fsOpts []option.ClientOption
	if cfg.FirestoreCredentialsFile != "" {
		fsOpts = append(fsOpts, option.WithCredentialsFile(cfg.FirestoreCredentialsFile))
	}
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirestoreProjectID}, fsOpts...)
	if err != nil {
		zapLogger.Fatal("failed to initialize firebase app", zap.Error(err))
	}
	firestoreClient, err := fbApp.Firestore(ctx)
	if err != nil {
		zapLogger.Fatal("failed to initialize firestore client", zap.Error(err))
	}

	gw := NewGateway(cfg, zapLogger, redisClient, firestoreClient)

	zapLogger.Info("starting chesscore realtime gateway",
		zap.String("addr", ":"+cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("nodeId", cfg.NodeID))

	go func() {
		if err := gw.Start(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("gateway server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down chesscore realtime gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("gateway forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("chesscore realtime gateway stopped")
}

// Gateway wires every component of the real-time core together and owns
// the HTTP server fronting the WebSocket upgrade and admin surface.
type Gateway struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *gin.Engine
	server *http.Server

	live    store.LiveStore
	durable store.DurableStore
	bus     *eventbus.Bus
	core    *gamecore.Core
	clock   *timemanager.Manager
	mm      *matchmaker.Matchmaker
	pipe    *persistence.Pipeline
	adapter *socket.Adapter
}

// NewGateway constructs the full component graph (§3's architecture:
// LiveStore/DurableStore, EventBus, GameCore, TimeManager, Matchmaker,
// PersistencePipeline, SocketAdapter).
func NewGateway(cfg *config.Config, zapLogger *zap.Logger, redisClient *redis.Client, firestoreClient *firestore.Client) *Gateway {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	live := store.NewRedisLiveStore(redisClient, zapLogger)
	durable := store.NewFirestoreDurableStore(firestoreClient, zapLogger)

	bus := eventbus.New(redisClient, cfg.NodeID, cfg.BusOpTimeout, zapLogger)

	engineImpl := chessengine.New()

	clock := timemanager.New(live, nil, bus, cfg.ClockScanPeriod, cfg.TimeUpTolerance, zapLogger)
	core := gamecore.New(live, durable, engineImpl, bus, clock, zapLogger)
	clock.SetForfeiter(core)

	mm := matchmaker.New(live, durable, core, matchmaker.Config{
		InitialRange:      cfg.InitialSearchRange,
		MaxRange:          cfg.MaxSearchRange,
		RangeStepPerTick:  cfg.RangeStepPerTick,
		RangeStepInterval: cfg.RangeStepInterval,
		SearchSessionTTL:  cfg.SearchSessionTTL,
		MatchLockTTL:      cfg.MatchLockTTL,
		LiveGameTTL:       cfg.LiveGameTTL,
	}, uuid.NewString, zapLogger)

	pipe := persistence.New(durable, persistence.Config{
		HighBatchSize:    cfg.HighPriorityBatchSize,
		HighFlushAfter:   cfg.HighPriorityFlushAfter,
		MediumBatchSize:  cfg.MediumPriorityBatchSize,
		MediumFlushAfter: cfg.MediumPriorityFlushAfter,
		LowMaxQueueDepth: cfg.LowPriorityMaxQueueDepth,
		MaxRetries:       cfg.PipelineMaxRetries,
		RetryBaseDelay:   cfg.PipelineRetryBaseDelay,
	}, nil, zapLogger)
	pipe.Subscribe(bus)

	adapter := socket.New(socket.Deps{
		Live:                   live,
		Durable:                durable,
		Matchmaker:             mm,
		Core:                   core,
		TimeManager:            clock,
		Bus:                    bus,
		JWTSecret:              []byte(cfg.JWTSecret),
		Logger:                 zapLogger,
		PerConnectionRateLimit: rate.Limit(10),
		Burst:                  20,
		LiveGameTTL:            cfg.LiveGameTTL,
		CORSAllowedOrigins:     cfg.CORSAllowedOrigins,
	})

	gw := &Gateway{
		cfg:     cfg,
		logger:  zapLogger,
		engine:  gin.New(),
		live:    live,
		durable: durable,
		bus:     bus,
		core:    core,
		clock:   clock,
		mm:      mm,
		pipe:    pipe,
		adapter: adapter,
	}

	gw.setupMiddleware()
	gw.setupRoutes()
	return gw
}

func (gw *Gateway) setupMiddleware() {
	gw.engine.Use(apperr.ErrorHandler(gw.logger))
	gw.engine.Use(logger.GinLogger())
}

func (gw *Gateway) setupRoutes() {
	gw.engine.GET("/health", gw.handleHealth)
	gw.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	gw.engine.GET("/ws", gw.adapter.HandleUpgrade)

	admin := gw.engine.Group("/admin")
	admin.GET("/matchmaking/stats", gw.handleMatchmakingStats)
}

func (gw *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   gw.cfg.ServiceName,
		"nodeId":    gw.cfg.NodeID,
		"timestamp": time.Now().Unix(),
	})
}

func (gw *Gateway) handleMatchmakingStats(c *gin.Context) {
	c.JSON(http.StatusOK, gw.mm.Stats())
}

// Start begins the background loops and the HTTP server.
func (gw *Gateway) Start() error {
	bgCtx := context.Background()
	gw.bus.Start(bgCtx)
	gw.pipe.Start(bgCtx)
	gw.clock.Start(bgCtx, gw.loadClockSnapshot)

	gw.server = &http.Server{
		Addr:           ":" + gw.cfg.Port,
		Handler:        gw.engine,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return gw.server.ListenAndServe()
}

// loadClockSnapshot is the TimeManager.LiveGameLoader: it reads the
// minimal fields the scanner needs without pulling in a GameCore import.
func (gw *Gateway) loadClockSnapshot(ctx context.Context, gameID string) (timemanager.GameSnapshot, error) {
	var g models.LiveGame
	found, err := gw.live.GetJSON(ctx, store.LiveGameKey(gameID), &g)
	if err != nil {
		return timemanager.GameSnapshot{}, err
	}
	if !found {
		return timemanager.GameSnapshot{GameID: gameID, GameOver: true}, nil
	}
	return timemanager.GameSnapshot{
		GameID:     gameID,
		TimeLeftMs: g.TimeLeftMs,
		GameOver:   g.GameOver,
	}, nil
}

// Shutdown drains every component in the order SPEC_FULL.md's graceful
// shutdown names: stop accepting sockets, flush the persistence pipeline,
// stop the clock scanner, close the bus, then close the stores.
func (gw *Gateway) Shutdown(ctx context.Context) error {
	if err := gw.server.Shutdown(ctx); err != nil {
		gw.logger.Warn("http server shutdown error", zap.Error(err))
	}

	gw.pipe.Stop()
	gw.clock.Stop()
	gw.bus.Close()

	if err := gw.live.Close(); err != nil {
		gw.logger.Warn("live store close error", zap.Error(err))
	}
	if err := gw.durable.Close(); err != nil {
		gw.logger.Warn("durable store close error", zap.Error(err))
	}
	return nil
}
