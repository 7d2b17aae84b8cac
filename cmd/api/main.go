package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vocalsense/vocalsense/internal/application"
	appcapture "github.com/vocalsense/vocalsense/internal/application/capture"
	apphistory "github.com/vocalsense/vocalsense/internal/application/history"
	appsession "github.com/vocalsense/vocalsense/internal/application/session"
	"github.com/vocalsense/vocalsense/internal/config"
	"github.com/vocalsense/vocalsense/internal/domain/analysis"
	domcapture "github.com/vocalsense/vocalsense/internal/domain/capture"
	aiclient "github.com/vocalsense/vocalsense/internal/infra/ai/openai"
	infracapture "github.com/vocalsense/vocalsense/internal/infra/capture"
	"github.com/vocalsense/vocalsense/internal/infra/db/memory"
	mysqlp "github.com/vocalsense/vocalsense/internal/infra/db/mysql"
	postgresp "github.com/vocalsense/vocalsense/internal/infra/db/postgres"
	"github.com/vocalsense/vocalsense/internal/infra/httpserver"
	"github.com/vocalsense/vocalsense/internal/infra/scoring"
	minioStore "github.com/vocalsense/vocalsense/internal/infra/storage"
	"github.com/vocalsense/vocalsense/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// history store backend
	var store analysis.Store
	var db *sql.DB
	switch cfg.History.Backend {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		defer db.Close()
		store = mysqlp.NewAnalysisRepository(db)
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		defer db.Close()
		store = postgresp.NewAnalysisRepository(db)
	default:
		store = memory.NewStore()
	}

	// scoring service client
	scorer := scoring.NewClient(cfg.Scoring.BaseURL, cfg.Scoring.RequestTimeout)

	// audio archive (optional)
	var archive analysis.Archive
	if cfg.Minio.Endpoint != "" {
		s, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = s
	}

	// recommendation enrichment (optional)
	var recommender analysis.Recommender
	if cfg.OpenAI.APIKey != "" {
		recommender = aiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}

	// microphone device
	var device domcapture.Device
	if cfg.Capture.DevicePath != "" {
		device = infracapture.SourceDevice{Path: cfg.Capture.DevicePath}
	} else {
		device = infracapture.NoDevice{Reason: "no capture device configured"}
	}

	captureCfg := appcapture.Config{
		MaxUploadBytes:     cfg.Capture.MaxUploadBytes,
		AllowM4A:           cfg.Capture.AllowM4A,
		RecommendedSeconds: cfg.Capture.RecommendedSeconds,
		SampleRate:         cfg.Capture.SampleRate,
		Channels:           cfg.Capture.Channels,
	}

	newManager := func(tenant string, sync *apphistory.Synchronizer) *appsession.Manager {
		m := appsession.NewManager(func() *appcapture.Controller {
			return appcapture.NewController(device, infracapture.EncodeWAV, application.SystemTicker, captureCfg)
		}, scorer, sync)
		m.Archive = archive
		m.Recommender = recommender
		return m
	}

	// detailed health with collaborator checks
	checkers := map[string]middleware.HealthChecker{
		"scoring": middleware.CheckerFunc(scorer.Check),
	}
	if db != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	// init router
	mux := chi.NewRouter()
	mux.Get("/status", middleware.HealthHandler(checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Mount("/", httpserver.NewRouter(httpserver.Options{
		Store:       store,
		NewManager:  newManager,
		Clock:       application.SystemClock{},
		CORSOrigins: cfg.Server.CORSOrigins,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // submissions run to completion inside the request
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
