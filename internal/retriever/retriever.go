// Package retriever ranks exported pages by how often a query occurs in them
// and formats the best ones as a prompt context.
package retriever

import (
	"fmt"
	"sort"
	"strings"

	"pdfchat/internal/export"
)

// DefaultTopK is used when a caller passes topK <= 0.
const DefaultTopK = 3

// Result is a page with its match count.
type Result struct {
	Page  string `json:"page"`
	Text  string `json:"text"`
	Score int    `json:"score"`
}

// Score counts non-overlapping, case-insensitive occurrences of query in text.
func Score(text, query string) int {
	return strings.Count(strings.ToLower(text), strings.ToLower(query))
}

// Rank orders records by score, highest first, keeping file order on ties.
// The topK best are kept and those with no match are then dropped, so fewer
// than topK results may come back.
func Rank(records []export.Record, query string, topK int) []Result {
	if topK <= 0 {
		topK = DefaultTopK
	}

	results := make([]Result, len(records))
	for i, rec := range records {
		results[i] = Result{Page: rec.Page, Text: rec.Text}
		if rec.HasText {
			results[i].Score = Score(rec.Text, query)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score > 0 {
			kept = append(kept, r)
		}
	}
	return kept
}

// FormatContext renders results as "Page N:\n<text>" blocks separated by a
// blank line.
func FormatContext(results []Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Page %s:\n%s", r.Page, r.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// Retrieve loads a CSV export and returns the formatted context for query.
// An empty string means nothing matched.
func Retrieve(csvPath, query string, topK int) (string, error) {
	records, err := export.ReadCSV(csvPath)
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	return FormatContext(Rank(records, query, topK)), nil
}
