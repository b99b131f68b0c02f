package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// FileStore serves documents from a directory. A key resolves to
// <dir>/<key>.json (comments and trailing commas allowed) or
// <dir>/<key>.yaml / <dir>/<key>.yml, in that order.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("knowledge base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("knowledge base path %s is not a directory", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Get returns the document for key normalised to plain JSON.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" || filepath.Base(key) != key {
		return nil, fmt.Errorf("invalid knowledge base key %q", key)
	}

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		name := filepath.Join(s.dir, key+ext)
		data, err := os.ReadFile(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return Normalize(name, data)
	}

	return nil, ErrNotFound
}

// Normalize converts a document to plain JSON based on the file extension of
// name. YAML is converted; anything else is treated as JSON with comments.
// The result is not checked for validity.
func Normalize(name string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	}
	return jsonc.ToJSON(data), nil
}

// yamlToJSON converts a YAML document to JSON so the accessor only decodes one format.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml document: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml document: %w", err)
	}
	return out, nil
}
