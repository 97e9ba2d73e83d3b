package delivery

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DirStore keeps the raw bytes of unparseable messages in a directory, one
// file per message key.
type DirStore struct {
	path   string
	logger *zap.Logger
}

// NewDirStore creates the undeliverable directory if needed.
func NewDirStore(path string, logger *zap.Logger) (*DirStore, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("delivery: creating undeliverable directory: %w", err)
	}
	return &DirStore{path: path, logger: logger}, nil
}

// Store writes one undeliverable message.
func (s *DirStore) Store(key string, raw []byte) error {
	dst := filepath.Join(s.path, filepath.Base(key))
	if err := os.WriteFile(dst, raw, 0o600); err != nil {
		return fmt.Errorf("delivery: storing undeliverable message: %w", err)
	}
	s.logger.Info("undeliverable message stored", zap.String("path", dst))
	return nil
}
