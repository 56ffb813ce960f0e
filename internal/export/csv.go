// Package export writes extracted pages to a page,text CSV and reads it back.
// Files start with a UTF-8 byte-order mark so spreadsheet tools pick the
// right encoding.
package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"pdfchat/internal/extractor"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Header is the CSV header row.
var Header = []string{"page", "text"}

// Record is one row read back from an export.
type Record struct {
	Page    string
	Text    string
	HasText bool // false when the text cell was empty
}

// WriteCSV writes pages to path, replacing any existing file.
func WriteCSV(pages []extractor.Page, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := Write(f, pages); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	return nil
}

// Write encodes pages as BOM-prefixed CSV to w.
func Write(w io.Writer, pages []extractor.Page) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(bom); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range pages {
		if err := cw.Write([]string{strconv.Itoa(p.Number), p.Text}); err != nil {
			return fmt.Errorf("write csv row %d: %w", p.Number, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return bw.Flush()
}

// ReadCSV loads an export written by WriteCSV.
func ReadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a page,text CSV. The BOM is optional and the two columns are
// located by header name.
func Read(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read csv: empty file")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	pageCol, textCol := -1, -1
	for i, name := range header {
		switch name {
		case "page":
			pageCol = i
		case "text":
			textCol = i
		}
	}
	if pageCol < 0 || textCol < 0 {
		return nil, fmt.Errorf("read csv: header %v lacks page/text columns", header)
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(records)+1, err)
		}
		rec := Record{Page: row[pageCol], Text: row[textCol]}
		rec.HasText = rec.Text != ""
		records = append(records, rec)
	}
	return records, nil
}
