package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File is a directory-backed store that survives process restarts.
// Each key is stored as one JSON file under a two-level hashed path so
// large key spaces don't pile up in a single directory.
type File struct {
	dir string
}

// fileRecord is the on-disk envelope. The original key is stored
// alongside the value because file names are hashes.
type fileRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewFile creates a file store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &File{dir: dir}, nil
}

// Get reads the value for key. A missing or unreadable file reports
// absent; a corrupt file is removed and reported absent.
func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	path := f.path(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = os.Remove(path)
		return "", false, nil
	}

	return rec.Value, true, nil
}

// Set writes value under key.
func (f *File) Set(_ context.Context, key, value string) error {
	data, err := json.Marshal(fileRecord{Key: key, Value: value})
	if err != nil {
		return err
	}

	path := f.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Delete removes the file for key if present.
func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes every entry file under this store's directory. The
// directory itself is kept.
func (f *File) Clear(ctx context.Context) error {
	keys, err := f.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := f.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Keys walks the store directory and returns the original keys of all
// readable entries. Corrupt files are skipped.
func (f *File) Keys(_ context.Context) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var rec fileRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil
		}
		keys = append(keys, rec.Key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// path maps a key to its file location. The first two hash characters
// form a subdirectory for distribution.
func (f *File) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	return filepath.Join(f.dir, hash[:2], hash[2:]+".json")
}

var _ Backend = (*File)(nil)
