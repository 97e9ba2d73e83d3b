// Package relay decides whether a rated message leaves the honeypot and
// defangs it before it does.
package relay

import (
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// Action is the gatekeeper's verdict for one message.
type Action int

const (
	// Drop means the message is not forwarded.
	Drop Action = iota
	// Forward means the sanitized bytes go to the delivery collaborator.
	Forward
)

// Config enables relaying and the individual sanitizers.
type Config struct {
	Enabled           bool
	DestroyAttachment bool
	DestroyLink       bool
	DestroyReplyTo    bool
}

// Gatekeeper applies the relay policy: rating threshold, rate cap, then the
// enabled sanitizers in a fixed order.
type Gatekeeper struct {
	cfg     Config
	counter core.RelayCounter
	stats   core.StatsRecorder
	logger  *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a gatekeeper. The rng drives the sanitizers' byte choices;
// tests pass a seeded source to make the output reproducible.
func New(cfg Config, counter core.RelayCounter, stats core.StatsRecorder, rng *rand.Rand, logger *zap.Logger) *Gatekeeper {
	return &Gatekeeper{
		cfg:     cfg,
		counter: counter,
		stats:   stats,
		rng:     rng,
		logger:  logger,
	}
}

// Decide returns the action for a message and, on Forward, the sanitized
// message bytes. Acquiring the rate-counter slot happens before sanitization
// so two concurrent invocations cannot both squeeze past the cap.
func (g *Gatekeeper) Decide(rec *core.MailRecord, rating int, raw []byte) (Action, []byte) {
	if !g.cfg.Enabled || rating < core.RelayThreshold {
		return Drop, nil
	}
	if !g.counter.TryAcquire() {
		g.logger.Info("relay limit reached, not relaying",
			zap.String("from", rec.From.Email), zap.Int("rating", rating))
		return Drop, nil
	}

	g.logger.Info("relaying message",
		zap.String("from", rec.From.Email), zap.Int("rating", rating))

	// rng is not safe for concurrent use
	g.mu.Lock()
	out := raw
	if g.cfg.DestroyAttachment {
		out = g.destroyAttachments(rec, out)
	}
	if g.cfg.DestroyLink {
		out = g.destroyLinks(rec, out)
	}
	if g.cfg.DestroyReplyTo {
		out = g.destroyReplyTo(rec, out)
	}
	g.mu.Unlock()

	g.stats.Record(core.CheckpointRelayed)
	return Forward, out
}
