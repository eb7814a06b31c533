package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/evidence-cli/internal/model"
)

// NormalizeText canonicalizes document text before hashing so that the same
// content arriving through different channels hashes identically: Unicode
// NFC, LF line endings, no trailing whitespace per line, at most one blank
// line in a row, and no leading or trailing blank space.
func NormalizeText(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// HashContent returns the hex SHA-256 of the normalized text.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// NewDocument builds a hashed Document. tickers are trimmed, upper-cased and
// de-duplicated.
func NewDocument(text string, sourceType model.SourceType, sourceDate time.Time, rawTextRef string, tickers []string) (model.Document, error) {
	if !sourceType.Valid() {
		return model.Document{}, model.NewInputError("source_type", "unknown source type %q", sourceType)
	}
	return model.Document{
		ContentHash: HashContent(text),
		SourceType:  sourceType,
		SourceDate:  sourceDate,
		RawTextRef:  rawTextRef,
		Tickers:     NormalizeTickers(tickers),
		Text:        text,
	}, nil
}

// NormalizeTickers trims, upper-cases and de-duplicates tickers, preserving
// first-seen order. Empty entries are dropped.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
