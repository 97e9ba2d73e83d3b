package core

import (
	"context"
	"sync"
)

// fakeCorpus is an in-memory Corpus with scripted read results and recorded
// writes.
type fakeCorpus struct {
	passwords      []string
	usernames      []string
	links          map[string]*LinkStat
	testRecipients map[string]bool
	similar        []*CorpusRecord

	inserted      []*CorpusRecord
	promoted      []int64
	deleted       []int64
	insertedLinks []*LinkStat
	linkRatings   map[string]int
}

func newFakeCorpus() *fakeCorpus {
	return &fakeCorpus{
		links:          make(map[string]*LinkStat),
		testRecipients: make(map[string]bool),
		linkRatings:    make(map[string]int),
	}
}

func (f *fakeCorpus) FindSimilar(context.Context, string, int) ([]*CorpusRecord, error) {
	return f.similar, nil
}

func (f *fakeCorpus) Passwords(context.Context) ([]string, error) { return f.passwords, nil }
func (f *fakeCorpus) Usernames(context.Context) ([]string, error) { return f.usernames, nil }

func (f *fakeCorpus) Link(_ context.Context, link string) (*LinkStat, error) {
	stat, ok := f.links[link]
	if !ok {
		return nil, nil
	}
	cp := *stat
	return &cp, nil
}

func (f *fakeCorpus) RecipientSeenInTest(_ context.Context, email string) (bool, error) {
	return f.testRecipients[email], nil
}

func (f *fakeCorpus) InsertMail(_ context.Context, rec *CorpusRecord) (int64, error) {
	f.inserted = append(f.inserted, rec)
	return int64(len(f.inserted)), nil
}

func (f *fakeCorpus) PromoteToTest(_ context.Context, id int64) error {
	f.promoted = append(f.promoted, id)
	return nil
}

func (f *fakeCorpus) DeleteMaybeTest(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCorpus) IncrementLink(_ context.Context, link string) (*LinkStat, error) {
	stat, ok := f.links[link]
	if !ok {
		return nil, nil
	}
	stat.Counter++
	cp := *stat
	return &cp, nil
}

func (f *fakeCorpus) UpdateLinkRating(_ context.Context, link string, rating int) error {
	f.linkRatings[link] = rating
	return nil
}

func (f *fakeCorpus) InsertLink(_ context.Context, stat *LinkStat) error {
	f.insertedLinks = append(f.insertedLinks, stat)
	return nil
}

func (f *fakeCorpus) SeedCredentials(_ context.Context, creds []Credential) error {
	for _, cred := range creds {
		f.usernames = append(f.usernames, cred.Username)
		f.passwords = append(f.passwords, cred.Password)
	}
	return nil
}

// fakeStats records the checkpoints that fired.
type fakeStats struct {
	mu    sync.Mutex
	fired []Checkpoint
}

func (f *fakeStats) Record(cp Checkpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, cp)
}

func (f *fakeStats) has(cp Checkpoint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.fired {
		if got == cp {
			return true
		}
	}
	return false
}

// disabledAnalyzer stands in when a test does not exercise text analysis.
type disabledAnalyzer struct{}

func (disabledAnalyzer) Enabled() bool { return false }
func (disabledAnalyzer) Analyze(context.Context, string) (*TextAnalysis, error) {
	return &TextAnalysis{}, nil
}
func (disabledAnalyzer) Similarity(context.Context, string, string) (float64, error) {
	return 0, nil
}

// scriptedAnalyzer returns fixed analysis results.
type scriptedAnalyzer struct {
	analysis   TextAnalysis
	similarity float64
}

func (scriptedAnalyzer) Enabled() bool { return true }
func (a scriptedAnalyzer) Analyze(context.Context, string) (*TextAnalysis, error) {
	cp := a.analysis
	return &cp, nil
}
func (a scriptedAnalyzer) Similarity(context.Context, string, string) (float64, error) {
	return a.similarity, nil
}

// exactCompare treats only identical fingerprints as similar.
func exactCompare(a, b string) int {
	if a == b {
		return 100
	}
	return 0
}
