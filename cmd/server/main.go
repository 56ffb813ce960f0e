package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"pdfchat/internal/chat"
	"pdfchat/internal/config"
	"pdfchat/internal/extractor"
	"pdfchat/internal/llm"
	"pdfchat/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Cannot start: %v", err)
	}

	model, err := llm.NewProvider(cfg.LLMProvider, cfg.APIKey(), cfg.LLMModel)
	if err != nil {
		log.Fatalf("Failed to init LLM provider: %v", err)
	}
	modelName := cfg.LLMModel
	if modelName == "" {
		modelName = llm.DefaultModel(cfg.LLMProvider)
	}
	log.Printf("LLM: %s (%s)", cfg.LLMProvider, modelName)

	var store chat.Store
	switch cfg.SessionStore {
	case "redis":
		rs, err := chat.NewRedisStore(chat.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SessionTTL,
		})
		if err != nil {
			log.Fatalf("Failed to connect session store: %v", err)
		}
		defer rs.Close()
		store = rs
		log.Printf("Sessions: redis at %s (ttl %s)", cfg.RedisAddr, cfg.SessionTTL)
	default:
		store = chat.NewMemoryStore()
		log.Printf("Sessions: in memory (lost on restart)")
	}

	ws, err := workspace.New(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to init upload dir: %v", err)
	}

	ocr := extractor.NewOCR(cfg.OCRRenderer, cfg.OCRLang)
	if ocr.Available() {
		log.Printf("OCR ready: Tesseract + %s renderer (%s)", cfg.OCRRenderer, cfg.OCRLang)
	} else {
		log.Printf("OCR: not available (scanned pages will come back empty)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ws.StartCleaner(ctx, cfg.UploadRetention, cfg.UploadCleanInterval)

	srv := &Server{
		relay: chat.NewRelay(store, model, chat.RelayOptions{
			SystemPrompt: cfg.SystemPrompt,
			Timeout:      cfg.ChatTimeout,
		}),
		sessions:       store,
		workspace:      ws,
		ocr:            ocr,
		provider:       cfg.LLMProvider,
		staticDir:      cfg.StaticDir,
		maxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsMiddleware(srv.routes()),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("PDF chat server starting on http://localhost:%s", cfg.Port)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
