// Package workspace owns the shared upload directory: stored PDFs and their
// CSV exports live side by side under random-id-prefixed names.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotPDF   = errors.New("only PDF files are allowed")
	ErrBadName  = errors.New("invalid file name")
	ErrNotFound = errors.New("file not found")
)

// idAttempts bounds retries when a freshly drawn id is already on disk.
const idAttempts = 5

type Workspace struct {
	Dir string
}

// New creates dir if needed.
func New(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Workspace{Dir: dir}, nil
}

// ValidatePDFName accepts bare file names ending in .pdf in any case.
func ValidatePDFName(name string) error {
	if name == "" {
		return ErrBadName
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return ErrNotPDF
	}
	if !isBaseName(name) {
		return ErrBadName
	}
	return nil
}

func isBaseName(name string) bool {
	return name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) &&
		filepath.Base(name) == name
}

// Upload is a stored PDF.
type Upload struct {
	ID       string // 8 hex chars
	Filename string // name as sent by the client
	Name     string // stored name, {ID}_{Filename}
	Path     string
	Size     int64

	dir string
}

// CSVName is the export name for u: {ID}_{stem}.csv.
func (u *Upload) CSVName() string {
	stem := strings.TrimSuffix(u.Filename, filepath.Ext(u.Filename))
	return u.ID + "_" + stem + ".csv"
}

func (u *Upload) CSVPath() string {
	return filepath.Join(u.dir, u.CSVName())
}

// SaveUpload validates filename and copies r into the workspace under a new
// id. Files are created exclusively, so concurrent uploads of the same name
// never share a path.
func (w *Workspace) SaveUpload(filename string, r io.Reader) (*Upload, error) {
	if err := ValidatePDFName(filename); err != nil {
		return nil, err
	}

	var (
		f   *os.File
		id  string
		err error
	)
	for i := 0; i < idAttempts; i++ {
		id = newID()
		f, err = os.OpenFile(filepath.Join(w.Dir, id+"_"+filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil || !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("save upload: %w", err)
	}

	return &Upload{
		ID:       id,
		Filename: filename,
		Name:     filepath.Base(f.Name()),
		Path:     f.Name(),
		Size:     n,
		dir:      w.Dir,
	}, nil
}

// newID can be swapped in tests to force collisions.
var newID = func() string {
	return uuid.NewString()[:8]
}

// CSVPathFor returns where the export for u lives in w.
func (w *Workspace) CSVPathFor(u *Upload) string {
	return filepath.Join(w.Dir, u.CSVName())
}

// Resolve maps a client-supplied file name to a path inside the workspace.
func (w *Workspace) Resolve(name string) (string, error) {
	if name == "" || !isBaseName(name) {
		return "", ErrNotFound
	}
	path := filepath.Join(w.Dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}
