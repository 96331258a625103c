package main

import (
	"log"
	"net/http"

	"clinical-mdr-api/cache"
	"clinical-mdr-api/config"
	"clinical-mdr-api/internal/server"
	"clinical-mdr-api/logger"
	"clinical-mdr-api/metrics"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	appLog := logger.InitGlobalLogger(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if !cfg.LogPretty {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.NewMetrics()
	itemCache := cache.New(cfg.CacheMaxSize, cfg.CacheTTL, m)

	// Initialize database
	db, err := config.InitDB(cfg, appLog)
	if err != nil {
		appLog.Error().Err(err).Msg("failed to connect to database")
		log.Fatal(err)
	}

	router := server.New(server.Deps{DB: db, Log: appLog, Metrics: m, Cache: itemCache})

	// Start server
	appLog.LogServerStart(cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		appLog.Error().Err(err).Msg("server stopped")
		log.Fatal(err)
	}
}
