package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/manifest"
	"github.com/sells-group/evidence-cli/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadItems_JSONArray(t *testing.T) {
	path := writeFile(t, "docs.json", `[
		{"text": "body", "source_type": "email", "source_date": "2025-05-01", "tickers": ["acme"],
		 "entities": [{"id": "e1", "type": "revenue", "value": 1.5}]}
	]`)

	items, err := LoadItems(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.SourceEmail, items[0].SourceType)
	assert.Equal(t, []string{"acme"}, items[0].Tickers)
	require.Len(t, items[0].Entities, 1)
	assert.InDelta(t, 1.5, *items[0].Entities[0].Value, 1e-9)
}

func TestLoadItems_JSONWrapped(t *testing.T) {
	path := writeFile(t, "docs.json", `{"documents": [{"text": "a", "source_type": "sec_filing"}, {"text": "b", "source_type": "url_pdf"}]}`)

	items, err := LoadItems(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.SourceURLPDF, items[1].SourceType)
}

func TestLoadItems_YAML(t *testing.T) {
	path := writeFile(t, "docs.yaml", `
documents:
  - text: quarterly update
    source_type: email
    source_date: "2025-04-30"
    tickers: [ACME]
    entities:
      - id: rev-1
        type: revenue
        value: 100
`)

	items, err := LoadItems(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "quarterly update", items[0].Text)
	require.Len(t, items[0].Entities, 1)
	assert.Equal(t, "rev-1", items[0].Entities[0].ID)
	assert.InDelta(t, 100.0, *items[0].Entities[0].Value, 1e-9)
}

func TestLoadItems_Errors(t *testing.T) {
	_, err := LoadItems(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = LoadItems(writeFile(t, "bad.json", `{"documents": [`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: decode")
}

func TestFileExtractor(t *testing.T) {
	items := []Item{
		{Text: "body\r\n", Entities: []model.Entity{{ID: "a"}}},
		{Text: "body", Entities: []model.Entity{{ID: "b"}}},
		{Text: "other"},
	}
	fe := NewFileExtractor(items)

	ex, err := fe.Extract(context.Background(), model.Document{ContentHash: manifest.HashContent("body")})
	require.NoError(t, err)
	require.Len(t, ex.Entities, 2)
	assert.Equal(t, "a", ex.Entities[0].ID)

	ex, err = fe.Extract(context.Background(), model.Document{ContentHash: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, ex.Entities)
}
