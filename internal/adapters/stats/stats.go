// Package stats counts checkpoint events. The recorder persists per-id
// counters in SQLite and mirrors them into a Prometheus counter vector.
package stats

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// Noop is the recorder used when statistics are disabled.
type Noop struct{}

// NewNoop creates a disabled recorder.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Record(core.Checkpoint) {}

const schema = `
CREATE TABLE IF NOT EXISTS statistics (
	id               INTEGER PRIMARY KEY,
	count            INTEGER NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	last_modified_at TIMESTAMP NOT NULL
);`

// Recorder persists checkpoint counters. Record never returns an error; a
// failed write is logged and the in-memory Prometheus counter still moves,
// so a broken statistics file cannot stall the pipeline.
type Recorder struct {
	db      *sql.DB
	counter *prometheus.CounterVec
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewRecorder opens (and if needed creates) the statistics database.
func NewRecorder(path string, logger *zap.Logger) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("stats: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: creating schema: %w", err)
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailsift_checkpoint_total",
		Help: "Number of times each scoring checkpoint fired.",
	}, []string{"checkpoint"})
	if err := prometheus.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			counter = already.ExistingCollector.(*prometheus.CounterVec)
		} else {
			db.Close()
			return nil, fmt.Errorf("stats: registering metrics: %w", err)
		}
	}

	return &Recorder{db: db, counter: counter, logger: logger}, nil
}

// Record bumps the counter for one checkpoint.
func (r *Recorder) Record(cp core.Checkpoint) {
	r.counter.WithLabelValues(cp.String()).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO statistics (id, count, created_at, last_modified_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			count = count + 1,
			last_modified_at = excluded.last_modified_at`,
		int(cp), now, now)
	if err != nil {
		r.logger.Error("recording checkpoint failed",
			zap.Int("checkpoint", int(cp)), zap.Error(err))
	}
}

// Close releases the statistics database.
func (r *Recorder) Close() error { return r.db.Close() }
