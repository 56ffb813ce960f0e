package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(filepath.Join(t.TempDir(), "uploaded_pdfs"))
	require.NoError(t, err)
	return ws
}

// ========== ValidatePDFName ==========

func TestValidatePDFName(t *testing.T) {
	cases := []struct {
		name string
		want error
	}{
		{"report.pdf", nil},
		{"report.PDF", nil},
		{"My Report.Pdf", nil},
		{"report.docx", ErrNotPDF},
		{"report.pdf.exe", ErrNotPDF},
		{"report", ErrNotPDF},
		{"", ErrBadName},
		{"../evil.pdf", ErrBadName},
		{`dir\evil.pdf`, ErrBadName},
		{"dir/evil.pdf", ErrBadName},
	}
	for _, tc := range cases {
		err := ValidatePDFName(tc.name)
		if tc.want == nil {
			require.NoError(t, err, tc.name)
		} else {
			require.ErrorIs(t, err, tc.want, tc.name)
		}
	}
}

// ========== SaveUpload ==========

func TestSaveUpload_StoresFile(t *testing.T) {
	ws := newWorkspace(t)

	up, err := ws.SaveUpload("report.PDF", strings.NewReader("%PDF-data"))
	require.NoError(t, err)
	require.Len(t, up.ID, 8)
	require.Equal(t, up.ID+"_report.PDF", up.Name)
	require.Equal(t, int64(9), up.Size)

	data, err := os.ReadFile(up.Path)
	require.NoError(t, err)
	require.Equal(t, "%PDF-data", string(data))

	require.Equal(t, up.ID+"_report.csv", up.CSVName())
	require.Equal(t, filepath.Join(ws.Dir, up.CSVName()), up.CSVPath())
	require.Equal(t, up.CSVPath(), ws.CSVPathFor(up))
}

func TestSaveUpload_RejectsNonPDF(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.SaveUpload("report.docx", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrNotPDF)

	entries, err := os.ReadDir(ws.Dir)
	require.NoError(t, err)
	require.Empty(t, entries, "rejected upload must not touch the workspace")
}

func TestSaveUpload_RetriesOnCollision(t *testing.T) {
	ws := newWorkspace(t)

	orig := newID
	defer func() { newID = orig }()
	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := ws.SaveUpload("a.pdf", strings.NewReader("1"))
	require.NoError(t, err)
	second, err := ws.SaveUpload("a.pdf", strings.NewReader("2"))
	require.NoError(t, err)

	require.Equal(t, "aaaaaaaa", first.ID)
	require.Equal(t, "bbbbbbbb", second.ID)

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	require.Equal(t, "1", string(data), "first upload was overwritten")
}

func TestSaveUpload_GivesUpAfterRepeatedCollisions(t *testing.T) {
	ws := newWorkspace(t)

	orig := newID
	defer func() { newID = orig }()
	newID = func() string { return "cccccccc" }

	_, err := ws.SaveUpload("a.pdf", strings.NewReader("1"))
	require.NoError(t, err)
	_, err = ws.SaveUpload("a.pdf", strings.NewReader("2"))
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrExist))
}

func TestSaveUpload_ConcurrentSameName(t *testing.T) {
	ws := newWorkspace(t)

	const n = 20
	names := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			up, err := ws.SaveUpload("same.pdf", strings.NewReader("data"))
			if err == nil {
				names[i] = up.Name
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, name := range names {
		require.NotEmpty(t, name)
		require.False(t, seen[name], "duplicate stored name %s", name)
		seen[name] = true
	}
}

// ========== Resolve ==========

func TestResolve(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, "abc_doc.csv"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(ws.Dir, "sub"), 0o755))

	path, err := ws.Resolve("abc_doc.csv")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws.Dir, "abc_doc.csv"), path)

	for _, name := range []string{"", "missing.csv", "../abc_doc.csv", "sub", "..", "sub/../abc_doc.csv"} {
		_, err := ws.Resolve(name)
		require.ErrorIs(t, err, ErrNotFound, name)
	}
}

// ========== Cleaner ==========

func TestSweep_RemovesOldFiles(t *testing.T) {
	ws := newWorkspace(t)
	oldPath := filepath.Join(ws.Dir, "old.csv")
	newPath := filepath.Join(ws.Dir, "new.csv")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("x"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	n, err := ws.Sweep(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = os.Stat(oldPath)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	require.NoError(t, err)
}

func TestStartCleaner_DisabledKeepsFiles(t *testing.T) {
	ws := newWorkspace(t)
	path := filepath.Join(ws.Dir, "keep.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	past := time.Now().Add(-365 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws.StartCleaner(ctx, 0, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestStartCleaner_RemovesExpired(t *testing.T) {
	ws := newWorkspace(t)
	path := filepath.Join(ws.Dir, "stale.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws.StartCleaner(ctx, time.Minute, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}
