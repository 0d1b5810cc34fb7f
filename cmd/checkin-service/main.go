package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"ms-checkin/internal/audit"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/auth/session_api"
	"ms-checkin/internal/config"
	"ms-checkin/internal/events/event_api"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/scanner"
	"ms-checkin/internal/scanner/scan_api"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/store/redisstore"
	"ms-checkin/internal/usage"
	"ms-checkin/internal/usage/usage_api"
	"ms-checkin/internal/utils"
)

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	client, err := redisstore.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		log.Fatal("STORE", "redis connection failed: "+err.Error())
	}
	defer client.Close()
	documentStore := redisstore.New(client, log)
	log.Info("STORE", "connected to redis at "+cfg.Redis.Addr)

	auditDB, err := audit.Open(ctx, cfg.Audit.SQLitePath)
	if err != nil {
		log.Fatal("AUDIT", "audit db open failed: "+err.Error())
	}
	defer auditDB.Close()

	userCache := auth.NewUserCache(client, documentStore, log)
	session := auth.NewSession()

	scanService := scanner.NewService(documentStore, userCache)
	scanService.Audit = auditDB
	scanService.Logger = log
	scanService.Retries = cfg.Scanner.ReadRetries
	scanService.Backoff = cfg.Scanner.ReadBackoff

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.RedeemedTopic, log)
		defer producer.Close()
		scanService.Publisher = producer
		log.Info("KAFKA", "publishing redemptions to "+cfg.Kafka.RedeemedTopic)
	}

	emitter := sse.NewLiveFeedEmitter()

	aggregator := usage.NewAggregator(documentStore, log)
	aggregator.Emitter = emitter

	scanHandler := scan_api.NewHandler(scanService, auditDB, log)
	scanHandler.Session = session
	eventHandler := event_api.NewHandler(documentStore, emitter, log)
	eventHandler.BatchSize = cfg.Scanner.BatchSize
	usageHandler := usage_api.NewHandler(aggregator, emitter, log)
	sessionHandler := session_api.NewHandler(session, userCache, log)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})
	r.Post("/session", sessionHandler.SignIn)
	r.Get("/session", sessionHandler.Current)
	r.Delete("/session", sessionHandler.SignOut)
	r.Post("/scan", scanHandler.Scan)
	r.Route("/events", func(r chi.Router) {
		r.Get("/", eventHandler.List)
		// The live dashboards hold their request open on the session future
		// until the station signs in.
		r.Get("/live", sessionHandler.Require(eventHandler.Live))
		r.Route("/{eventID}", func(r chi.Router) {
			r.Get("/name", scanHandler.EventName)
			r.Get("/scans", scanHandler.RecentScans)
			r.Get("/scans/outcomes", scanHandler.ScanOutcomes)
			r.Get("/usage", usageHandler.Snapshot)
			r.Get("/usage/live", sessionHandler.Require(usageHandler.Live))
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// WriteTimeout stays unset: the SSE endpoints hold their
		// connections open for as long as a dashboard watches.
	}

	go func() {
		log.Info("SERVER", "check-in service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "http error: "+err.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "check-in service shutdown complete")
}
