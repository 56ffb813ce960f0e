package extractor

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

// OCRDPI is the resolution image-only pages are rendered at before OCR.
const OCRDPI = 300

// Page is the extracted text of one PDF page. Number is 1-based.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Extraction is the result of ExtractPDF.
type Extraction struct {
	Pages []Page `json:"pages"`

	// OCRRequested mirrors Options.OCRFallback.
	OCRRequested bool `json:"ocr_requested"`
	// OCRSkipped is true when OCR was requested, at least one page came back
	// empty, and no OCR capability was available to recover it.
	OCRSkipped bool `json:"ocr_skipped"`
	// OCRPages lists the page numbers whose text came from OCR.
	OCRPages []int `json:"ocr_pages,omitempty"`
}

// Options controls ExtractPDF.
type Options struct {
	OCRFallback bool
	OCR         *OCR // nil means no OCR capability
}

// ExtractPDF extracts text from a PDF page by page, in document order.
// Every page is returned, blank ones with empty text. When OCRFallback is set
// and OCR is available, pages with no selectable text are rasterised and run
// through OCR instead.
func ExtractPDF(ctx context.Context, filePath string, opts Options) (*Extraction, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	fileName := filepath.Base(filePath)
	numPages := r.NumPage()

	out := &Extraction{
		Pages:        make([]Page, numPages),
		OCRRequested: opts.OCRFallback,
	}

	var blank []int // indexes into out.Pages
	for pageIndex := 1; pageIndex <= numPages; pageIndex++ {
		text := pageText(r, pageIndex)
		out.Pages[pageIndex-1] = Page{Number: pageIndex, Text: text}
		if text == "" {
			blank = append(blank, pageIndex-1)
		}
	}

	if !opts.OCRFallback || len(blank) == 0 {
		return out, nil
	}

	if !opts.OCR.Available() {
		log.Printf("OCR requested for %s but no OCR capability is available, %d blank page(s) left empty", fileName, len(blank))
		out.OCRSkipped = true
		return out, nil
	}

	if err := ocrPages(ctx, opts.OCR, filePath, out.Pages, blank); err != nil {
		return nil, err
	}
	for _, i := range blank {
		out.OCRPages = append(out.OCRPages, out.Pages[i].Number)
	}
	log.Printf("OCR recovered %d blank page(s) of %s", len(blank), fileName)
	return out, nil
}

// pageText returns the trimmed plain text of one page. Unreadable pages
// yield an empty string rather than failing the document.
func pageText(r *pdf.Reader, pageIndex int) (text string) {
	// the parser panics on some malformed content streams
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Page %d unreadable: %v", pageIndex, rec)
			text = ""
		}
	}()

	p := r.Page(pageIndex)
	if p.V.IsNull() {
		return ""
	}
	str, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(str)
}

// ocrPages runs OCR on pages[idx] for each idx in blank, concurrently.
// Results land at their own index so page order is untouched.
func ocrPages(ctx context.Context, o *OCR, filePath string, pages []Page, blank []int) error {
	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, idx := range blank {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			pageNum := pages[i].Number
			text, err := o.RecognizePage(ctx, filePath, pageNum)
			if err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("ocr page %d of %s: %w", pageNum, filepath.Base(filePath), err)
					cancel()
				})
				return
			}
			pages[i].Text = strings.TrimSpace(text)
		}(idx)
	}

	wg.Wait()
	return firstErr
}
