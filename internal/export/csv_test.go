package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pdfchat/internal/extractor"
)

func TestWriteCSV_StartsWithBOMAndHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	pages := []extractor.Page{{Number: 1, Text: "hello"}}

	require.NoError(t, WriteCSV(pages, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "missing BOM")
	require.Equal(t, "page,text\n1,hello\n", string(data[3:]))
}

func TestWriteCSV_RowCountMatchesPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	pages := []extractor.Page{
		{Number: 1, Text: "a"},
		{Number: 2, Text: ""},
		{Number: 3, Text: "c"},
	}
	require.NoError(t, WriteCSV(pages, path))

	recs, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, recs, len(pages))
}

func TestWriteCSV_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSV([]extractor.Page{{Number: 1, Text: "old"}, {Number: 2, Text: "old"}}, path))
	require.NoError(t, WriteCSV([]extractor.Page{{Number: 1, Text: "new"}}, path))

	recs, err := ReadCSV(path)
	require.NoError(t, err)
	require.Equal(t, []Record{{Page: "1", Text: "new", HasText: true}}, recs)
}

func TestWriteCSV_UnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "out.csv")
	require.Error(t, WriteCSV(nil, path))
}

func TestRoundTrip_ASCII(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	pages := []extractor.Page{
		{Number: 1, Text: "plain text"},
		{Number: 2, Text: `commas, "quotes" and more`},
		{Number: 3, Text: "line one\nline two"},
		{Number: 4, Text: ""},
		{Number: 5, Text: "  inner  spacing  "},
	}
	require.NoError(t, WriteCSV(pages, path))

	recs, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, recs, len(pages))
	for i, p := range pages {
		require.Equal(t, "12345"[i:i+1], recs[i].Page)
		require.Equal(t, p.Text, recs[i].Text)
		require.Equal(t, p.Text != "", recs[i].HasText)
	}
}

func TestRead_WithoutBOM(t *testing.T) {
	recs, err := Read(strings.NewReader("page,text\n7,seven\n"))
	require.NoError(t, err)
	require.Equal(t, []Record{{Page: "7", Text: "seven", HasText: true}}, recs)
}

func TestRead_ColumnsByName(t *testing.T) {
	recs, err := Read(strings.NewReader("text,page\nhello,3\n"))
	require.NoError(t, err)
	require.Equal(t, "3", recs[0].Page)
	require.Equal(t, "hello", recs[0].Text)
}

func TestRead_BadHeader(t *testing.T) {
	_, err := Read(strings.NewReader("a,b\n1,2\n"))
	require.Error(t, err)
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	require.Error(t, err)
}

func TestReadCSV_Missing(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
