package guideline

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	publisherSeparator  = " | "
	professionSeparator = ", "
)

// Extract maps a raw guideline to its archived record. It never fails: missing or
// mistyped fields become empty strings. DetailURL is copied from frontendUrl and
// PDFPath is left for the archiver to fill.
func Extract(g Guideline) Record {
	return Record{
		Title:         g.Title(),
		PublishedDate: g.String("dates.publishedBySource"),
		Publisher:     publishers(g),
		Professions:   professions(g),
		SourceLabel:   g.String("type.label"),
		SourceType:    g.String("type.sourceType"),
		DetailURL:     g.DetailURL(),
	}
}

func publishers(g Guideline) string {
	v, ok := g.Value("publishers")
	if !ok || isEmpty(v) {
		return ""
	}
	if list, ok := v.([]any); ok {
		return joinNames(list, publisherSeparator)
	}
	return stringify(v)
}

func professions(g Guideline) string {
	v, ok := g.Value("metadata.professions")
	if !ok {
		return ""
	}
	switch p := v.(type) {
	case []any:
		return joinNames(p, professionSeparator)
	case string:
		return p
	default:
		return ""
	}
}

// joinNames joins string entries and the name (or label) of object entries.
func joinNames(list []any, sep string) string {
	names := make([]string, 0, len(list))
	for _, item := range list {
		var name string
		switch v := item.(type) {
		case string:
			name = v
		case map[string]any:
			name = nameOrLabel(v)
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, sep)
}

// nameOrLabel prefers "name" and only falls back to "label" when name is absent.
func nameOrLabel(obj map[string]any) string {
	if v, ok := obj["name"]; ok {
		s, _ := v.(string)
		return s
	}
	s, _ := obj["label"].(string)
	return s
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
