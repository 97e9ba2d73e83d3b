// Package queue feeds the pipeline from a maildir-style spool directory.
package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler processes one spooled message identified by its file name.
type Handler func(ctx context.Context, key string, raw []byte) error

// Config locates the spool and the optional raw-copy archive.
type Config struct {
	// Path is the directory the transport writes new messages into.
	Path string

	// SaveRaw copies each message into RawPath before processing.
	SaveRaw bool
	RawPath string
}

// Watcher picks up message files as the transport drops them into the spool
// directory, hands them to the pipeline and removes them afterwards.
type Watcher struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates a watcher for the configured spool directory.
func New(cfg Config, handler Handler, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("queue: creating watcher: %w", err)
	}
	if err := fsw.Add(cfg.Path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("queue: watching %s: %w", cfg.Path, err)
	}
	return &Watcher{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		watcher: fsw,
		done:    make(chan struct{}),
	}, nil
}

// Run drains any messages already spooled, then processes new ones as their
// files appear. It returns when the context is canceled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.drain(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			// transports either write in place or rename a temp file in
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.process(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("spool watcher error", zap.Error(err))
		}
	}
}

// Stop ends Run and releases the inotify watch.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) drain(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Path)
	if err != nil {
		return fmt.Errorf("queue: reading spool: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.process(ctx, filepath.Join(w.cfg.Path, entry.Name()))
	}
	return nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	key := filepath.Base(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		w.logger.Error("reading spooled message failed",
			zap.String("key", key), zap.Error(err))
		return
	}

	if w.cfg.SaveRaw {
		dst := filepath.Join(w.cfg.RawPath, key)
		if err := os.WriteFile(dst, raw, 0o600); err != nil {
			w.logger.Error("archiving raw message failed",
				zap.String("key", key), zap.Error(err))
		}
	}

	if err := w.handler(ctx, key, raw); err != nil {
		w.logger.Error("processing message failed",
			zap.String("key", key), zap.Error(err))
	}
	if err := os.Remove(path); err != nil {
		w.logger.Error("removing spooled message failed",
			zap.String("key", key), zap.Error(err))
	}
}
