package main

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/gorilla/websocket"

	"pdfchat/internal/chat"
	"pdfchat/internal/extractor"
	"pdfchat/internal/workspace"
)

// Server holds all shared state.
type Server struct {
	relay     *chat.Relay
	sessions  chat.Store
	workspace *workspace.Workspace
	ocr       *extractor.OCR // nil when tesseract is unavailable
	provider  string
	staticDir string

	maxUploadBytes int64
	upgrader       websocket.Upgrader
}

const defaultMaxUpload = 100 << 20

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleChat)

	mux.HandleFunc("POST /upload-pdf", s.handleUploadPDF)
	mux.HandleFunc("GET /download-csv/{filename}", s.handleDownloadCSV)
	mux.HandleFunc("GET /retrieve", s.handleRetrieve)

	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
		mux.HandleFunc("GET /{$}", s.handleIndex)
	}
	return mux
}

// handleIndex serves the browser client page; its scripts load from /static/.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.staticDir, "index.html"))
}

// ========== Middleware ==========

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ========== Helpers ==========

func jsonResp(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
