package model

import (
	"strings"
	"time"
)

// SourceType identifies how a document reached the ingestion layer.
type SourceType string

const (
	SourceEmail      SourceType = "email"
	SourceAttachment SourceType = "attachment"
	SourceURLPDF     SourceType = "url_pdf"
	SourceSECFiling  SourceType = "sec_filing"
)

// SourceTypes lists every document source type in a stable order.
var SourceTypes = []SourceType{SourceEmail, SourceAttachment, SourceURLPDF, SourceSECFiling}

// Valid reports whether s is one of the known document source types.
func (s SourceType) Valid() bool {
	switch s {
	case SourceEmail, SourceAttachment, SourceURLPDF, SourceSECFiling:
		return true
	}
	return false
}

// ParseSourceType converts a user-supplied string into a SourceType.
func ParseSourceType(raw string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(raw)))
	if !st.Valid() {
		return "", NewInputError("source_type", "unknown source type %q", raw)
	}
	return st, nil
}

// ParseSourceTypes validates a list of source type names. An empty list
// means every known type.
func ParseSourceTypes(raw []string) ([]SourceType, error) {
	if len(raw) == 0 {
		return append([]SourceType(nil), SourceTypes...), nil
	}
	out := make([]SourceType, 0, len(raw))
	for _, r := range raw {
		st, err := ParseSourceType(r)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Document is a unit submitted for ingestion. It is immutable once hashed:
// constructors compute ContentHash from Text and callers must not edit Text
// afterwards.
type Document struct {
	ContentHash string     `json:"content_hash"`
	SourceType  SourceType `json:"source_type"`
	SourceDate  time.Time  `json:"source_date"`
	RawTextRef  string     `json:"raw_text_ref,omitempty"`
	Tickers     []string   `json:"tickers,omitempty"`
	EntityCount int        `json:"entity_count,omitempty"`

	// Text is the extracted document body. It is hashed but never persisted.
	Text string `json:"-"`
}
