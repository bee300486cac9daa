// Command server is the process entrypoint: it wires configuration,
// logging, the card catalog, the rules engine, the lobby, and the
// connection dispatcher together and serves HTTP until signaled to stop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/djorgosz2/car-card-game-server/internal/catalog"
	"github.com/djorgosz2/car-card-game-server/internal/config"
	"github.com/djorgosz2/car-card-game-server/internal/engine"
	"github.com/djorgosz2/car-card-game-server/internal/logger"
	"github.com/djorgosz2/car-card-game-server/internal/metrics"
	"github.com/djorgosz2/car-card-game-server/internal/models"
	"github.com/djorgosz2/car-card-game-server/internal/orchestrator"
	"github.com/djorgosz2/car-card-game-server/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	if err := logger.Initialize(&logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Output:     cfg.LogOutput,
		Filename:   "cardcards.log",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 14,
		Compress:   true,
	}); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	log := logger.Get()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load card catalog")
	}
	log.WithField("card_count", len(cat.Definitions)).Info("card catalog loaded")

	eng := engine.New(cat)

	byID := make(map[string]*models.CardDefinition, len(cat.Definitions))
	for _, def := range cat.Definitions {
		byID[def.ID] = def
	}

	turnTimeLimitMs := int64(cfg.TurnTimeLimitSeconds) * 1000

	var manager *ws.Manager
	newMatch := func(id string, players [2]engine.PlayerInit, seed uint32) *orchestrator.Match {
		return orchestrator.New(id, eng, byID, players, seed, turnTimeLimitMs, manager.OnMatchEnd(), log.WithMatch(id))
	}

	manager = ws.New(ws.Config{
		RequestsPerSecond:  5,
		Burst:              10,
		LobbyAIEnabled:     cfg.AIEnabled,
		LobbyAIDelayMs:     cfg.AIDelayMs,
		HumanOnlyMaxWaitMs: cfg.HumanOnlyMaxWaitMs,
	}, newMatch, log.WithField("component", "ws"))

	mux := gin.New()
	mux.Use(gin.Recovery())
	mux.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	mux.GET("/ws", func(c *gin.Context) {
		manager.ServeHTTP(c.Writer, c.Request)
	})
	mux.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("car cards server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down car cards server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("car cards server stopped")
}
