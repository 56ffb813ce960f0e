// Command extract converts PDFs to page,text CSV files and can print the
// retrieval context a query would get from each one.
//
//	extract [-o dir] [-ocr] [-query text] [-top-k n] file.pdf|dir ...
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdfchat/internal/config"
	"pdfchat/internal/export"
	"pdfchat/internal/extractor"
	"pdfchat/internal/retriever"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	outDir := flag.String("o", "", "output directory (default: next to each PDF)")
	useOCR := flag.Bool("ocr", false, "OCR pages that have no text layer")
	renderer := flag.String("renderer", cfg.OCRRenderer, "page renderer for OCR: fitz or poppler")
	lang := flag.String("lang", cfg.OCRLang, "tesseract language")
	query := flag.String("query", "", "print the retrieval context for this query")
	topK := flag.Int("top-k", retriever.DefaultTopK, "pages to keep for -query")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: extract [flags] file.pdf|dir ...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var ocr *extractor.OCR
	if *useOCR {
		ocr = extractor.NewOCR(*renderer, *lang)
	}

	files, err := collectPDFs(flag.Args())
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			log.Fatalf("Failed to create output dir: %v", err)
		}
	}

	start := time.Now()
	failed := 0
	for _, path := range files {
		fmt.Printf("Processing %s...\n", path)

		ext, err := extractor.ExtractPDF(context.Background(), path, extractor.Options{OCRFallback: *useOCR, OCR: ocr})
		if err != nil {
			log.Printf("Failed to extract %s: %v", path, err)
			failed++
			continue
		}

		csvPath := csvPathFor(path, *outDir)
		if err := export.WriteCSV(ext.Pages, csvPath); err != nil {
			log.Printf("Failed to write %s: %v", csvPath, err)
			failed++
			continue
		}
		fmt.Printf("Extracted %d pages to %s\n", len(ext.Pages), csvPath)
		if ext.OCRSkipped {
			fmt.Println("  OCR was requested but tesseract is not available; blank pages left empty")
		}

		if *query != "" {
			ctx, err := retriever.Retrieve(csvPath, *query, *topK)
			if err != nil {
				log.Printf("Failed to search %s: %v", csvPath, err)
				continue
			}
			if ctx == "" {
				fmt.Printf("  No page mentions %q\n", *query)
			} else {
				fmt.Printf("\n%s\n\n", ctx)
			}
		}
	}

	fmt.Printf("Finished %d file(s) in %v\n", len(files)-failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		os.Exit(1)
	}
}

// collectPDFs expands directories (one level) into the PDFs they contain.
func collectPDFs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				files = append(files, filepath.Join(arg, e.Name()))
			}
		}
	}
	return files, nil
}

func csvPathFor(pdfPath, outDir string) string {
	base := filepath.Base(pdfPath)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".csv"
	if outDir == "" {
		return filepath.Join(filepath.Dir(pdfPath), name)
	}
	return filepath.Join(outDir, name)
}
