package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gradebook-risk-server-go/archive"
	"gradebook-risk-server-go/config"
	"gradebook-risk-server-go/db"
	"gradebook-risk-server-go/handlers"
	"gradebook-risk-server-go/logger"
	"gradebook-risk-server-go/sheets"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis Client
	redisClient, err := db.InitializeRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to Redis")
	}
	defer redisClient.Close()

	redisService := db.NewRedisService(redisClient, log)

	arch, err := archive.New(cfg.DataDir, cfg.CurrentFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not prepare data directory")
	}
	loader := sheets.NewLoader(log)

	checkAndLoadCurrent(ctx, log, redisService, arch, loader)

	apiHandler := handlers.NewAPIHandler(redisService, arch, loader, cfg.MaxUploadBytes, log)
	router := handlers.NewRouter(apiHandler, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

// checkAndLoadCurrent analyses the archived workbook when Redis holds no
// analysis yet, so a restart against an empty Redis still serves data.
func checkAndLoadCurrent(ctx context.Context, log zerolog.Logger, store *db.RedisService, arch *archive.Archive, loader *sheets.Loader) {
	periods, err := store.GetPeriods(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not check stored analyses, skipping initial load")
		return
	}
	if len(periods) > 0 {
		log.Info().Int("periods", len(periods)).Msg("Found stored analyses, skipping initial load")
		return
	}

	f, err := arch.Open()
	if errors.Is(err, archive.ErrNoWorkbook) {
		log.Info().Str("dir", arch.Dir).Msg("No workbook archived yet, waiting for an upload")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Could not open archived workbook")
		return
	}
	defer f.Close()

	wb, err := sheets.Open(f)
	if err != nil {
		log.Warn().Err(err).Msg("Archived workbook is unreadable")
		return
	}
	defer wb.Close()

	result, err := loader.Load(ctx, wb, "")
	if err != nil {
		log.Warn().Err(err).Msg("Could not analyse archived workbook")
		return
	}
	if err := store.SaveAnalysis(ctx, result); err != nil {
		log.Warn().Err(err).Msg("Could not store initial analysis")
		return
	}
	log.Info().
		Str("period", string(result.Info.Period)).
		Int("students", result.Cohort.StudentCount).
		Msg("Loaded archived workbook")
}
