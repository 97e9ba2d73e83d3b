// Package corpus provides the persisted mail-corpus implementations: an
// in-memory store for tests and small deployments, and SQL stores backed by
// SQLite or MySQL.
package corpus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// MemoryStore keeps the whole corpus in process memory. Safe for concurrent
// use; all returned records are copies.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	mails   map[int64]*core.CorpusRecord
	links   map[string]*core.LinkStat
	creds   map[core.Credential]struct{}
	compare core.CompareFunc
	logger  *zap.Logger
}

// NewMemoryStore creates an empty in-memory corpus.
func NewMemoryStore(compare core.CompareFunc, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		mails:   make(map[int64]*core.CorpusRecord),
		links:   make(map[string]*core.LinkStat),
		creds:   make(map[core.Credential]struct{}),
		compare: compare,
		logger:  logger,
	}
}

func (s *MemoryStore) FindSimilar(_ context.Context, fingerprint string, minScore int) ([]*core.CorpusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.CorpusRecord
	for _, rec := range s.mails {
		if s.compare(fingerprint, rec.Fingerprint) >= minScore {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) Passwords(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.creds))
	for cred := range s.creds {
		out = append(out, cred.Password)
	}
	return out, nil
}

func (s *MemoryStore) Usernames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.creds))
	for cred := range s.creds {
		out = append(out, cred.Username)
	}
	return out, nil
}

func (s *MemoryStore) Link(_ context.Context, link string) (*core.LinkStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.links[link]
	if !ok {
		return nil, nil
	}
	cp := *stat
	return &cp, nil
}

func (s *MemoryStore) RecipientSeenInTest(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.mails {
		if rec.State != core.StateTest {
			continue
		}
		for _, to := range rec.Recipients {
			if to.Email == email {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemoryStore) InsertMail(_ context.Context, rec *core.CorpusRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := copyRecord(rec)
	stored.ID = s.nextID
	s.nextID++
	s.mails[stored.ID] = stored
	s.logger.Debug("mail inserted",
		zap.Int64("id", stored.ID),
		zap.String("state", stored.State.String()),
		zap.Int("rating", stored.Rating))
	return stored.ID, nil
}

func (s *MemoryStore) PromoteToTest(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.mails[id]
	if ok && rec.State == core.StateMaybeTest {
		rec.State = core.StateTest
	}
	return nil
}

func (s *MemoryStore) DeleteMaybeTest(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.mails[id]
	if ok && rec.State == core.StateMaybeTest {
		delete(s.mails, id)
	}
	return nil
}

func (s *MemoryStore) IncrementLink(_ context.Context, link string) (*core.LinkStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.links[link]
	if !ok {
		return nil, nil
	}
	stat.Counter++
	cp := *stat
	return &cp, nil
}

func (s *MemoryStore) UpdateLinkRating(_ context.Context, link string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stat, ok := s.links[link]; ok {
		stat.Rating = core.ClampRating(rating)
	}
	return nil
}

func (s *MemoryStore) InsertLink(_ context.Context, stat *core.LinkStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[stat.Link]; ok {
		return nil
	}
	cp := *stat
	cp.Rating = core.ClampRating(cp.Rating)
	s.links[stat.Link] = &cp
	return nil
}

func (s *MemoryStore) SeedCredentials(_ context.Context, creds []core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cred := range creds {
		s.creds[cred] = struct{}{}
	}
	return nil
}

// Close exists so every corpus implementation can be shut down uniformly.
func (s *MemoryStore) Close() error { return nil }

func copyRecord(rec *core.CorpusRecord) *core.CorpusRecord {
	cp := *rec
	cp.Recipients = make([]core.Address, len(rec.Recipients))
	copy(cp.Recipients, rec.Recipients)
	return &cp
}
