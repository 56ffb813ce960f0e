package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
)

// OCR is the optional OCR capability: a tesseract binary plus a renderer
// that turns a PDF page into an image tesseract can read.
type OCR struct {
	Bin      string // resolved tesseract binary
	TessData string // tessdata dir next to Bin, empty to use tesseract's default
	Lang     string // tesseract -l value, defaults to "eng"
	Renderer Renderer
}

// Available reports whether o can run. It is safe to call on a nil *OCR.
func (o *OCR) Available() bool {
	return o != nil && o.Bin != "" && o.Renderer != nil
}

// NewOCR probes the system for tesseract and returns an OCR using the named
// renderer ("fitz" or "poppler"). It returns nil when tesseract is missing
// or the renderer cannot run here.
func NewOCR(renderer, lang string) *OCR {
	bin, ok := DetectTesseract()
	if !ok {
		return nil
	}

	var rdr Renderer
	switch strings.ToLower(renderer) {
	case "poppler", "pdftoppm":
		if !DetectPdftoppm() {
			log.Printf("OCR WARNING: OCR_RENDERER=poppler but pdftoppm is not on PATH")
			return nil
		}
		rdr = PopplerRenderer{}
	case "fitz", "mupdf", "":
		rdr = FitzRenderer{}
	default:
		log.Printf("OCR WARNING: unknown renderer %q, OCR disabled", renderer)
		return nil
	}

	if lang == "" {
		lang = "eng"
	}
	o := &OCR{Bin: bin, Lang: lang, Renderer: rdr}
	if dir := filepath.Join(filepath.Dir(bin), "tessdata"); fileExists(filepath.Join(dir, lang+".traineddata")) {
		o.TessData = dir
	}
	return o
}

// DetectTesseract checks whether the tesseract binary is available.
// It first checks PATH, then probes common Windows install directories.
func DetectTesseract() (string, bool) {
	if path, err := exec.LookPath("tesseract"); err == nil {
		log.Printf("Tesseract found on PATH: %s", path)
		return path, true
	}

	if runtime.GOOS == "windows" {
		candidates := []string{
			`C:\Program Files\Tesseract-OCR\tesseract.exe`,
			`C:\Program Files\Tesseract\tesseract.exe`,
			`C:\Program Files (x86)\Tesseract-OCR\tesseract.exe`,
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Tesseract-OCR", "tesseract.exe"),
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", "Tesseract-OCR", "tesseract.exe"),
		}
		for _, c := range candidates {
			if !fileExists(c) {
				continue
			}
			if err := exec.Command(c, "--version").Run(); err != nil {
				continue
			}
			if !fileExists(filepath.Join(filepath.Dir(c), "tessdata", "eng.traineddata")) {
				log.Printf("Tesseract at %s: skipping, eng.traineddata not found", c)
				continue
			}
			log.Printf("Tesseract found at: %s", c)
			return c, true
		}
	}

	log.Printf("Tesseract OCR not found (install tesseract for scanned PDF support)")
	return "", false
}

// DetectPdftoppm checks whether pdftoppm (Poppler) is on PATH.
func DetectPdftoppm() bool {
	_, err := exec.LookPath("pdftoppm")
	return err == nil
}

// tesseractSem limits concurrent tesseract processes across all extractions.
var tesseractSem = make(chan struct{}, runtime.NumCPU())

func acquireOCRSlot(ctx context.Context) (release func(), err error) {
	select {
	case tesseractSem <- struct{}{}:
		return func() { <-tesseractSem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecognizePage renders one page (1-based) at OCRDPI and returns its OCR text.
// The render and the tesseract run share one slot of tesseractSem, so at most
// NumCPU page images are held in memory at once.
func (o *OCR) RecognizePage(ctx context.Context, pdfPath string, page int) (string, error) {
	if !o.Available() {
		return "", fmt.Errorf("tesseract binary not found")
	}
	release, err := acquireOCRSlot(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	img, err := o.Renderer.RenderPage(ctx, pdfPath, page, OCRDPI)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return o.recognize(ctx, img)
}

// Recognize runs tesseract on an encoded image passed through stdin.
func (o *OCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if !o.Available() {
		return "", fmt.Errorf("tesseract binary not found")
	}
	release, err := acquireOCRSlot(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	return o.recognize(ctx, image)
}

// recognize runs tesseract; the caller holds a tesseractSem slot.
func (o *OCR) recognize(ctx context.Context, image []byte) (string, error) {
	lang := o.Lang
	if lang == "" {
		lang = "eng"
	}
	cmd := exec.CommandContext(ctx, o.Bin, "stdin", "stdout", "-l", lang)
	cmd.Env = append(os.Environ(), "OMP_THREAD_LIMIT=1")
	if o.TessData != "" {
		cmd.Env = append(cmd.Env, "TESSDATA_PREFIX="+o.TessData)
	}
	cmd.Stdin = bytes.NewReader(image)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %v (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

// Renderer turns one PDF page into an encoded image.
type Renderer interface {
	RenderPage(ctx context.Context, pdfPath string, page int, dpi float64) ([]byte, error)
}

// FitzRenderer rasterises pages in memory with MuPDF.
type FitzRenderer struct{}

func (FitzRenderer) RenderPage(ctx context.Context, pdfPath string, page int, dpi float64) ([]byte, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1-%d)", page, doc.NumPage())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("image page %d: %w", page, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PopplerRenderer rasterises pages with the pdftoppm CLI.
type PopplerRenderer struct{}

func (PopplerRenderer) RenderPage(ctx context.Context, pdfPath string, page int, dpi float64) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "pdfchat-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png", "-r", strconv.Itoa(int(dpi)),
		"-f", n, "-l", n, "-singlefile",
		pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %v (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	return os.ReadFile(prefix + ".png")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
