// Package pipeline wires one message's journey: normalize, score, resolve,
// gatekeep, deliver.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
	"github.com/mailsift/mailsift/internal/mailparse"
	"github.com/mailsift/mailsift/internal/relay"
)

// Pipeline processes messages handed over by the queue receiver.
type Pipeline struct {
	normalizer    *mailparse.Normalizer
	engine        *core.Engine
	resolver      *core.Resolver
	gatekeeper    *relay.Gatekeeper
	delivery      core.Delivery
	undeliverable core.UndeliverableStore
	logger        *zap.Logger
}

// New creates a pipeline.
func New(
	normalizer *mailparse.Normalizer,
	engine *core.Engine,
	resolver *core.Resolver,
	gatekeeper *relay.Gatekeeper,
	delivery core.Delivery,
	undeliverable core.UndeliverableStore,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		normalizer:    normalizer,
		engine:        engine,
		resolver:      resolver,
		gatekeeper:    gatekeeper,
		delivery:      delivery,
		undeliverable: undeliverable,
		logger:        logger,
	}
}

// Process runs one raw message through the whole pipeline. key identifies
// the message in the spool; it survives into the undeliverable store on
// parse failure.
func (p *Pipeline) Process(ctx context.Context, key string, raw []byte) error {
	logger := p.logger.With(
		zap.String("key", key),
		zap.String("invocation_id", uuid.NewString()))

	rec, err := p.normalizer.Normalize(raw, time.Now())
	if err != nil {
		var parseErr *mailparse.ParseError
		if errors.As(err, &parseErr) {
			logger.Warn("message is undeliverable", zap.String("reason", parseErr.Reason), zap.Error(parseErr.Err))
			if serr := p.undeliverable.Store(key, raw); serr != nil {
				logger.Error("storing undeliverable message failed", zap.Error(serr))
			}
			return nil
		}
		return err
	}

	score, err := p.engine.Score(ctx, rec)
	if err != nil {
		return err
	}
	rating := p.resolver.Resolve(ctx, rec, score)
	logger.Info("message rated",
		zap.String("from", rec.From.Email),
		zap.Int("rating", rating))

	action, sanitized := p.gatekeeper.Decide(rec, rating, raw)
	if action == relay.Drop {
		return nil
	}

	recipients := make([]string, len(rec.Recipients))
	for i, to := range rec.Recipients {
		recipients[i] = to.Email
	}
	if err := p.delivery.Deliver(ctx, rec.From.Email, recipients, sanitized); err != nil {
		logger.Error("delivery failed", zap.Error(err))
		return err
	}
	logger.Info("message relayed", zap.Strings("recipients", recipients))
	return nil
}
