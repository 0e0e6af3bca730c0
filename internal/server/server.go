package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/actuarial-tools/asopd/config"
	"github.com/actuarial-tools/asopd/internal/extract"
	"github.com/actuarial-tools/asopd/internal/ingest"
	"github.com/actuarial-tools/asopd/internal/store"
	openai_provider "github.com/actuarial-tools/asopd/provider/openai"
)

func Run(cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		payload := map[string]interface{}{"error_kind": "internal", "message": err.Error()}
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			switch m := he.Message.(type) {
			case map[string]interface{}:
				payload = m
			case string:
				payload = map[string]interface{}{"error_kind": "internal", "message": m}
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, payload)
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "ASOP Compliance API is running!"})
	})
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Apply migrations before opening the store; ensureSchema covers fresh
	// databases when no migrations directory ships with the binary.
	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		log.Printf("migrations skipped: %v", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	e.GET("/healthz", func(c echo.Context) error {
		if err := st.DB.PingContext(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, map[string]interface{}{
				"error_kind": "store_failed", "message": err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	if cfg.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key not configured (providers.openai.api_key)")
	}
	llm := openai_provider.NewClient(cfg.Providers.OpenAI)

	ing := &ingest.Ingestor{
		Extractor:      extract.New(),
		LLM:            llm,
		Store:          st,
		MaxInputLength: cfg.Analysis.MaxInputLength,
		OversizeEffect: cfg.Analysis.OversizeEffect,
		ArchiveDir:     cfg.Storage.File.DataDir,
		Logger:         log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}

	uh := &UploadsHandler{Store: st, Ingest: ing, MaxFileBytes: cfg.Upload.MaxFileBytes}
	uh.Register(e)

	ah := &AnalyzeHandler{LLM: llm}
	ah.Register(e)

	addr := cfg.General.Listen
	if addr == "" {
		addr = ":8080"
	}
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
