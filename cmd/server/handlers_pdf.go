package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"pdfchat/internal/export"
	"pdfchat/internal/extractor"
	"pdfchat/internal/retriever"
	"pdfchat/internal/workspace"
)

// ========== Upload ==========

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	limit := s.maxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonErr(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	useOCR, err := formBool(r.FormValue("use_ocr"))
	if err != nil {
		jsonErr(w, "use_ocr must be a boolean", http.StatusBadRequest)
		return
	}

	up, err := s.workspace.SaveUpload(header.Filename, file)
	switch {
	case errors.Is(err, workspace.ErrNotPDF):
		jsonErr(w, "Only PDF files are allowed.", http.StatusBadRequest)
		return
	case errors.Is(err, workspace.ErrBadName):
		jsonErr(w, "Invalid file name.", http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("Upload %q failed: %v", header.Filename, err)
		jsonErr(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	log.Printf("Stored upload %s (%d bytes)", up.Name, up.Size)

	ext, err := extractor.ExtractPDF(r.Context(), up.Path, extractor.Options{OCRFallback: useOCR, OCR: s.ocr})
	if err != nil {
		log.Printf("Extraction of %s failed: %v", up.Name, err)
		discardUpload(up)
		jsonErr(w, "Failed to extract text: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := export.WriteCSV(ext.Pages, up.CSVPath()); err != nil {
		log.Printf("CSV export for %s failed: %v", up.Name, err)
		discardUpload(up)
		jsonErr(w, "Failed to write CSV", http.StatusInternalServerError)
		return
	}
	log.Printf("Extracted %d pages from %s (OCR pages: %v)", len(ext.Pages), up.Name, ext.OCRPages)

	jsonResp(w, map[string]interface{}{
		"csv_filename":      up.CSVName(),
		"download_endpoint": "/download-csv/" + up.CSVName(),
		"pages":             len(ext.Pages),
		"ocr_requested":     ext.OCRRequested,
		"ocr_skipped":       ext.OCRSkipped,
	})
}

// discardUpload removes a stored PDF and any partial export after a failed
// upload.
func discardUpload(up *workspace.Upload) {
	for _, path := range []string{up.Path, up.CSVPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Cleanup of %s failed: %v", path, err)
		}
	}
}

// formBool accepts the usual HTML form spellings; empty means false.
func formBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return false, nil
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(v)
}

// ========== Download ==========

func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	path, err := s.workspace.Resolve(name)
	if err != nil {
		jsonErr(w, "File not found.", http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		jsonErr(w, "File not found.", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		jsonErr(w, "File not found.", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// ========== Retrieve ==========

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		jsonErr(w, "q is required", http.StatusBadRequest)
		return
	}

	topK := retriever.DefaultTopK
	if v := q.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonErr(w, "top_k must be a positive integer", http.StatusBadRequest)
			return
		}
		topK = n
	}

	path, err := s.workspace.Resolve(q.Get("file"))
	if err != nil {
		jsonErr(w, "File not found.", http.StatusNotFound)
		return
	}
	ctx, err := retriever.Retrieve(path, query, topK)
	if err != nil {
		jsonErr(w, "Failed to read CSV: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	jsonResp(w, map[string]interface{}{"context": ctx})
}

// ========== Health ==========

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, map[string]interface{}{
		"status":        "ok",
		"ocr_available": s.ocr.Available(),
		"provider":      s.provider,
	})
}
