package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

type fileState struct {
	CartID string `json:"cartId"`
}

type fileStore struct {
	mu   sync.Mutex
	path string
}

// NewFile stores the identifier as JSON at path. Writes go through a temp
// file and rename so a crash never leaves a torn file.
func NewFile(path string) Store {
	return &fileStore{path: path}
}

func (f *fileStore) Get(_ context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read identity file: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(raw, &st); err != nil {
		return "", false, fmt.Errorf("decode identity file %s: %w", f.path, err)
	}
	return st.CartID, st.CartID != "", nil
}

func (f *fileStore) Set(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.MarshalIndent(fileState{CartID: id}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cart-identity-*")
	if err != nil {
		return fmt.Errorf("create temp identity file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write identity file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace identity file: %w", err)
	}
	return nil
}
