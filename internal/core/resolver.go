package core

import (
	"context"

	"go.uber.org/zap"
)

const (
	// maybeTestThreshold is the lower bound of the "might be a probe" band.
	maybeTestThreshold = 50

	// secondaryPromoteThreshold is the corroboration score at which a stored
	// MaybeTest record is superseded by the current message.
	secondaryPromoteThreshold = 60
)

// Resolver settles the classification state of a message against its
// near-duplicate candidates and records the outcome in the corpus. Corpus
// write failures are logged and do not change the returned rating; the relay
// decision is taken on the in-memory value.
type Resolver struct {
	corpus Corpus
	stats  StatsRecorder
	logger *zap.Logger
}

// NewResolver creates a classification resolver.
func NewResolver(corpus Corpus, stats StatsRecorder, logger *zap.Logger) *Resolver {
	return &Resolver{corpus: corpus, stats: stats, logger: logger}
}

// Resolve returns the final clamped rating for the message and applies the
// corpus mutations it implies.
func (r *Resolver) Resolve(ctx context.Context, rec *MailRecord, score *ScoreResult) int {
	rating := score.Rating
	candidates := score.Candidates

	hasTest := false
	var maybeCands []*CorpusRecord
	for _, cand := range candidates {
		switch cand.State {
		case StateTest:
			hasTest = true
		case StateMaybeTest:
			maybeCands = append(maybeCands, cand)
		}
	}

	// a near-duplicate of a confirmed test implies this one is too
	if hasTest && rating < RelayThreshold {
		r.logger.Info("similar message already confirmed as test")
		r.stats.Record(CheckpointSimilarInTest)
		rating = 100
	}

	inserted := false
	if rating >= RelayThreshold && !hasTest {
		r.insert(ctx, rec, StateTest, rating)
		inserted = true
	}

	deleted := make(map[int64]bool)
	if len(maybeCands) > 0 || (rating >= maybeTestThreshold && rating < RelayThreshold) {
		usernames, err := r.corpus.Usernames(ctx)
		if err != nil {
			r.logger.Error("username lookup failed during corroboration", zap.Error(err))
		}
		superseded := false
		for _, cand := range maybeCands {
			s := r.secondaryScore(ctx, rec, rating, cand, usernames)
			if s < secondaryPromoteThreshold {
				continue
			}
			r.logger.Info("stored maybe-test record superseded",
				zap.Int64("id", cand.ID), zap.Int("corroboration", s))
			if err := r.corpus.DeleteMaybeTest(ctx, cand.ID); err != nil {
				r.logger.Error("maybe-test delete failed", zap.Int64("id", cand.ID), zap.Error(err))
				continue
			}
			deleted[cand.ID] = true
			superseded = true
		}
		if !inserted && rating < RelayThreshold {
			state := StateMaybeTest
			if superseded {
				state = StateTest
			}
			r.insert(ctx, rec, state, rating)
			inserted = true
		}
		// a near-duplicate of an existing probe can't score as ordinary spam
		if len(maybeCands) > 0 && rating < maybeTestThreshold {
			r.logger.Info("similar message already in maybe-test corpus")
			r.stats.Record(CheckpointSimilarInMaybeTest)
			rating = maybeTestThreshold
		}
	}

	// surviving MaybeTest candidates are confirmed by a high-rated or
	// recipient-corroborated duplicate
	if rating >= RelayThreshold || score.RecipientReused {
		for _, cand := range maybeCands {
			if deleted[cand.ID] {
				continue
			}
			r.logger.Info("promoting maybe-test record to test", zap.Int64("id", cand.ID))
			if err := r.corpus.PromoteToTest(ctx, cand.ID); err != nil {
				r.logger.Error("promotion failed", zap.Int64("id", cand.ID), zap.Error(err))
			}
		}
	}

	r.updateLinkRatings(ctx, rec, rating)
	if rating >= maybeTestThreshold {
		for _, link := range score.NewLinks {
			stat := &LinkStat{Link: link, Counter: 1, Rating: clampRating(rating)}
			if err := r.corpus.InsertLink(ctx, stat); err != nil {
				r.logger.Error("link insert failed", zap.String("link", link), zap.Error(err))
			}
		}
	}

	return clampRating(rating)
}

// secondaryScore measures how much more probe-like the current message is
// than a stored MaybeTest candidate. Each corroborating signal adds a fixed
// amount, so the score never decreases as signals accumulate.
func (r *Resolver) secondaryScore(ctx context.Context, rec *MailRecord, rating int, cand *CorpusRecord, usernames []string) int {
	score := 0
	if rating > cand.Rating {
		score += 17
	}
	if !rec.HasAttachment() && cand.HasAttachment {
		score += 17
	}
	for _, username := range usernames {
		if username == "" {
			continue
		}
		if fieldLeaked(rec.Subject, cand.Subject, username) {
			score += 17
		}
		if fieldLeaked(rec.BodyPlain, cand.BodyPlain, username) {
			score += 17
		}
		if fieldLeaked(rec.BodyHTML, cand.BodyHTML, username) {
			score += 17
		}
	}
	for _, link := range rec.Links {
		stat, err := r.corpus.Link(ctx, link)
		if err != nil {
			r.logger.Error("link lookup failed during corroboration", zap.String("link", link), zap.Error(err))
			continue
		}
		if stat != nil && stat.Rating >= RelayThreshold {
			score += 15
		}
	}
	return score
}

func (r *Resolver) insert(ctx context.Context, rec *MailRecord, state ClassificationState, rating int) {
	record := NewCorpusRecord(rec, state, rating)
	if _, err := r.corpus.InsertMail(ctx, record); err != nil {
		r.logger.Error("corpus insert failed", zap.String("state", state.String()), zap.Error(err))
		return
	}
	r.logger.Debug("message recorded in corpus",
		zap.String("state", state.String()), zap.Int("rating", record.Rating))
}

func (r *Resolver) updateLinkRatings(ctx context.Context, rec *MailRecord, rating int) {
	for _, link := range rec.Links {
		stat, err := r.corpus.Link(ctx, link)
		if err != nil {
			r.logger.Error("link lookup failed", zap.String("link", link), zap.Error(err))
			continue
		}
		if stat == nil || rating <= stat.Rating {
			continue
		}
		if err := r.corpus.UpdateLinkRating(ctx, link, clampRating(rating)); err != nil {
			r.logger.Error("link rating update failed", zap.String("link", link), zap.Error(err))
		}
	}
}

// fieldLeaked reports whether the username shows up in the current field but
// not in the stored candidate's counterpart.
func fieldLeaked(current, stored, username string) bool {
	if current == "" {
		return false
	}
	return containsAny(current, []string{username}) && !containsAny(stored, []string{username})
}
