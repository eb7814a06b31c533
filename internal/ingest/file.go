package ingest

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/evidence-cli/internal/manifest"
	"github.com/sells-group/evidence-cli/internal/model"
)

// itemsFile is the wrapped input format: {"documents": [...]}. A dead letter
// file ({"dead_letters": [...]}) is read the same way.
type itemsFile struct {
	Documents   []Item       `json:"documents" yaml:"documents"`
	DeadLetters []DeadLetter `json:"dead_letters" yaml:"dead_letters"`
}

func (f itemsFile) items() []Item {
	items := append([]Item(nil), f.Documents...)
	for _, dl := range f.DeadLetters {
		items = append(items, dl.Item)
	}
	return items
}

// LoadItems reads ingestion items from a JSON or YAML file. A bare array, an
// object with a "documents" key and a dead letter file are accepted.
func LoadItems(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return decodeYAMLItems(data, path)
	}
	return decodeJSONItems(data, path)
}

func decodeJSONItems(data []byte, path string) ([]Item, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []Item
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, eris.Wrapf(err, "ingest: decode %s", path)
		}
		return items, nil
	}
	var f itemsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "ingest: decode %s", path)
	}
	return f.items(), nil
}

func decodeYAMLItems(data []byte, path string) ([]Item, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, eris.Wrapf(err, "ingest: decode %s", path)
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var items []Item
		if err := node.Decode(&items); err != nil {
			return nil, eris.Wrapf(err, "ingest: decode %s", path)
		}
		return items, nil
	}
	var f itemsFile
	if err := node.Decode(&f); err != nil {
		return nil, eris.Wrapf(err, "ingest: decode %s", path)
	}
	return f.items(), nil
}

// FileExtractor serves candidates that were extracted ahead of time and
// shipped alongside the documents.
type FileExtractor struct {
	candidates map[string]Extraction
}

// NewFileExtractor indexes the candidates carried by items by content hash.
func NewFileExtractor(items []Item) *FileExtractor {
	fe := &FileExtractor{candidates: make(map[string]Extraction, len(items))}
	for _, item := range items {
		hash := manifest.HashContent(item.Text)
		ex := fe.candidates[hash]
		ex.Entities = append(ex.Entities, item.Entities...)
		ex.Edges = append(ex.Edges, item.Edges...)
		fe.candidates[hash] = ex
	}
	return fe
}

// Extract implements Extractor. Documents without shipped candidates yield an
// empty extraction.
func (fe *FileExtractor) Extract(_ context.Context, doc model.Document) (Extraction, error) {
	return fe.candidates[doc.ContentHash], nil
}

// JSONWriter writes each batch as indented JSON.
type JSONWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONWriter creates a JSONWriter over w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

// Write implements GraphWriter.
func (jw *JSONWriter) Write(_ context.Context, batch Batch) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	enc := json.NewEncoder(jw.w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(batch), "ingest: encode batch")
}
