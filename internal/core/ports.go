package core

import (
	"context"
)

// CompareFunc scores two fingerprints on a 0-100 scale; higher means more
// similar. Implementations must be symmetric.
type CompareFunc func(a, b string) int

// CorpusReader is the read side of the persisted mail corpus.
type CorpusReader interface {
	// FindSimilar returns every classified record whose fingerprint scores at
	// least minScore against the given one.
	FindSimilar(ctx context.Context, fingerprint string, minScore int) ([]*CorpusRecord, error)

	// Passwords returns every known honeypot password.
	Passwords(ctx context.Context) ([]string, error)

	// Usernames returns every known honeypot username.
	Usernames(ctx context.Context) ([]string, error)

	// Link returns the reputation row for a link, or nil when unseen.
	Link(ctx context.Context, link string) (*LinkStat, error)

	// RecipientSeenInTest reports whether the address appeared as a recipient
	// on any Test-classified record.
	RecipientSeenInTest(ctx context.Context, email string) (bool, error)
}

// CorpusWriter is the write side of the persisted mail corpus. Multi-row
// mutations (insert with recipients, promote, delete) must be serialized so
// two concurrent near-duplicates cannot both act as the first one.
type CorpusWriter interface {
	InsertMail(ctx context.Context, rec *CorpusRecord) (int64, error)

	// PromoteToTest flips a MaybeTest record to Test; a no-op for records in
	// any other state.
	PromoteToTest(ctx context.Context, id int64) error

	// DeleteMaybeTest removes a MaybeTest record; Test records are never
	// deleted through this interface.
	DeleteMaybeTest(ctx context.Context, id int64) error

	// IncrementLink bumps the seen-counter of a known link and returns the
	// updated row, or (nil, nil) for a link not yet in the corpus.
	IncrementLink(ctx context.Context, link string) (*LinkStat, error)

	UpdateLinkRating(ctx context.Context, link string, rating int) error
	InsertLink(ctx context.Context, stat *LinkStat) error

	// SeedCredentials adds any credential pairs not already known.
	SeedCredentials(ctx context.Context, creds []Credential) error
}

// Corpus combines both sides of the corpus contract.
type Corpus interface {
	CorpusReader
	CorpusWriter
}

// TextAnalysis is the semantic summary of one body of text.
type TextAnalysis struct {
	// RealWordCount counts tokens longer than two characters tagged as a
	// noun, proper noun or verb.
	RealWordCount int

	// DominantLabel is the most frequent named-entity label, with percent,
	// cardinal and date entities excluded.
	DominantLabel string
	DominantCount int

	// DominantTopic is the most repeated entity text under DominantLabel.
	DominantTopic string
}

// TextAnalyzer is the optional semantic-analysis capability. Failures and
// timeouts are soft: callers skip the analysis step and continue.
type TextAnalyzer interface {
	// Enabled reports whether this analyzer does real work. The no-op
	// implementation returns false so callers can skip analysis entirely.
	Enabled() bool

	Analyze(ctx context.Context, text string) (*TextAnalysis, error)

	// Similarity scores two texts in [0,1].
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// RelayCounter is the shared forwarding budget. TryAcquire must perform the
// check-and-increment as one atomic step; Reset is called only by the
// external scheduler collaborator.
type RelayCounter interface {
	TryAcquire() bool
	Reset()
	Count() int64
}

// StatsRecorder counts checkpoint events. Implementations must be safe for
// concurrent use; the disabled implementation is a no-op.
type StatsRecorder interface {
	Record(cp Checkpoint)
}

// RuleMatcher is one user-supplied rule evaluated against a mail record.
type RuleMatcher interface {
	Match(rec *MailRecord) (bool, error)
	Label() string
}

// Delivery hands a (possibly sanitized) message to the outbound relay.
type Delivery interface {
	Deliver(ctx context.Context, from string, recipients []string, raw []byte) error
}

// UndeliverableStore receives the raw bytes of messages the normalizer could
// not parse.
type UndeliverableStore interface {
	Store(key string, raw []byte) error
}
