package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/jsonx"
)

// FileBackend stores each bucket as one JSON object file, keyed the way the
// operator-facing artifacts are (geocache.json, sources/manifest.json, ...).
// Each Put rewrites the bucket's file.
type FileBackend struct {
	paths map[string]string

	mu     sync.Mutex
	loaded map[string]*jsonx.Object
}

// NewFile maps bucket names to file paths. Buckets without a path are
// rejected at use.
func NewFile(paths map[string]string) *FileBackend {
	cp := make(map[string]string, len(paths))
	for k, v := range paths {
		cp[k] = v
	}
	return &FileBackend{paths: cp, loaded: make(map[string]*jsonx.Object)}
}

func (f *FileBackend) load(bucket string) (*jsonx.Object, error) {
	if obj, ok := f.loaded[bucket]; ok {
		return obj, nil
	}
	path, ok := f.paths[bucket]
	if !ok {
		return nil, eris.Errorf("file store: no path configured for bucket %q", bucket)
	}
	obj := jsonx.NewObject()
	if _, err := dataset.ReadJSONIfExists(path, obj); err != nil {
		return nil, eris.Wrapf(err, "file store: load %s", path)
	}
	f.loaded[bucket] = obj
	return obj, nil
}

func (f *FileBackend) Get(_ context.Context, bucket, key string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, err := f.load(bucket)
	if err != nil {
		return nil, err
	}
	v, ok := obj.Get(key)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (f *FileBackend) Put(_ context.Context, bucket, key string, value json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, err := f.load(bucket)
	if err != nil {
		return err
	}
	// The cached bucket only changes once the file has been written.
	next := obj.Clone()
	next.Set(key, append(json.RawMessage(nil), value...))
	if err := dataset.WriteJSON(f.paths[bucket], next); err != nil {
		return eris.Wrapf(err, "file store: save %s", f.paths[bucket])
	}
	f.loaded[bucket] = next
	return nil
}

func (f *FileBackend) List(_ context.Context, bucket string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, err := f.load(bucket)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, obj.Len())
	for _, k := range obj.Keys() {
		v, _ := obj.Get(k)
		out = append(out, Record{Key: k, Value: v})
	}
	return out, nil
}

// Migrate is a no-op; files and directories are created on first write.
func (f *FileBackend) Migrate(context.Context) error { return nil }

func (f *FileBackend) Close() error { return nil }
