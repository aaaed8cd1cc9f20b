// Package dataset reads and writes the canonical market dataset and the
// other JSON artifacts the pipeline persists.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap-cli/internal/model"
)

// Load reads the canonical dataset file.
func Load(path string) (*model.Dataset, error) {
	var ds model.Dataset
	if err := ReadJSON(path, &ds); err != nil {
		return nil, eris.Wrapf(err, "dataset: load %s", path)
	}
	return &ds, nil
}

// Save rewrites the canonical dataset file in place.
func Save(path string, ds *model.Dataset) error {
	if err := WriteJSON(path, ds); err != nil {
		return eris.Wrapf(err, "dataset: save %s", path)
	}
	return nil
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "read file")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrap(err, "decode json")
	}
	return nil
}

// ReadJSONIfExists is ReadJSON that leaves v untouched and reports false when
// the file does not exist.
func ReadJSONIfExists(path string, v any) (bool, error) {
	err := ReadJSON(path, v)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// WriteJSON writes v as two-space indented JSON with a trailing newline. The
// file is replaced atomically so an interrupted run never leaves a truncated
// artifact.
func WriteJSON(path string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "create dir")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return eris.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "rename temp file")
	}
	return nil
}

// Encode renders v the way every artifact is stored: two-space indent, no
// HTML escaping, trailing newline.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, eris.Wrap(err, "encode json")
	}
	return buf.Bytes(), nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
