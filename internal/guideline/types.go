// Package guideline defines the guideline document, the archived record shape, and
// the ports shared by the ingestion pipeline.
package guideline

import (
	"fmt"
	"strings"
)

// UnknownTitle is used when a guideline carries no usable title.
const UnknownTitle = "Unknown Title"

// Header is the fixed column layout of the archived record store.
var Header = []string{
	"title",
	"published_date",
	"publisher",
	"professions",
	"source_label",
	"source_type",
	"frontend_url",
	"pdf_path",
}

// KeyColumn is the index of the detail URL (dedup key) within Header.
const KeyColumn = 6

// Guideline is one raw entry of the upstream search collection. The upstream schema is
// heterogeneous, so the document is kept loosely typed and read through accessors that
// fall back to zero values.
type Guideline map[string]any

// Value returns the raw value stored at a dotted path such as "dates.publishedBySource".
func (g Guideline) Value(path string) (any, bool) {
	var cur any = map[string]any(g)
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path or "" when absent or not a string.
func (g Guideline) String(path string) string {
	v, ok := g.Value(path)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Bool reports the boolean at path. present is false when the field is missing or is
// not a JSON boolean.
func (g Guideline) Bool(path string) (value bool, present bool) {
	v, ok := g.Value(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	if !ok {
		return false, false
	}
	return b, true
}

// Has reports whether path exists, regardless of its type.
func (g Guideline) Has(path string) bool {
	_, ok := g.Value(path)
	return ok
}

// Title returns the guideline title or UnknownTitle.
func (g Guideline) Title() string {
	if t := g.String("title"); t != "" {
		return t
	}
	return UnknownTitle
}

// DetailURL returns the relative frontend URL used as the dedup key.
func (g Guideline) DetailURL() string {
	return g.String("frontendUrl")
}

// Record is the fixed-shape archived form of a guideline.
type Record struct {
	Title         string
	PublishedDate string
	Publisher     string
	Professions   string
	SourceLabel   string
	SourceType    string
	DetailURL     string
	PDFPath       string
}

// Row serializes the record in Header order.
func (r Record) Row() []string {
	return []string{
		r.Title,
		r.PublishedDate,
		r.Publisher,
		r.Professions,
		r.SourceLabel,
		r.SourceType,
		r.DetailURL,
		r.PDFPath,
	}
}

// RecordFromRow parses a row laid out in Header order.
func RecordFromRow(row []string) (Record, error) {
	if len(row) != len(Header) {
		return Record{}, fmt.Errorf("row has %d columns, want %d", len(row), len(Header))
	}
	return Record{
		Title:         row[0],
		PublishedDate: row[1],
		Publisher:     row[2],
		Professions:   row[3],
		SourceLabel:   row[4],
		SourceType:    row[5],
		DetailURL:     row[6],
		PDFPath:       row[7],
	}, nil
}
