package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestResolver(corpus *fakeCorpus, stats *fakeStats) *Resolver {
	return NewResolver(corpus, stats, zap.NewNop())
}

func TestResolveTestDuplicateForcesHundred(t *testing.T) {
	corpus := newFakeCorpus()
	stats := &fakeStats{}
	resolver := newTestResolver(corpus, stats)

	score := &ScoreResult{
		Rating:     40,
		Candidates: []*CorpusRecord{{ID: 7, State: StateTest, Rating: 80}},
	}
	rating := resolver.Resolve(context.Background(), &MailRecord{}, score)

	assert.Equal(t, 100, rating)
	assert.True(t, stats.has(CheckpointSimilarInTest))
	// the duplicate already sits in the corpus, no second insert
	assert.Empty(t, corpus.inserted)
}

func TestResolveInsertsTestAtRelayThreshold(t *testing.T) {
	corpus := newFakeCorpus()
	stats := &fakeStats{}
	resolver := newTestResolver(corpus, stats)

	rec := &MailRecord{Subject: "probe", Fingerprint: "FP"}
	rating := resolver.Resolve(context.Background(), rec, &ScoreResult{Rating: 70})

	assert.Equal(t, 70, rating)
	require.Len(t, corpus.inserted, 1)
	assert.Equal(t, StateTest, corpus.inserted[0].State)
	assert.Equal(t, 70, corpus.inserted[0].Rating)
}

func TestResolveMidBandInsertsMaybeTest(t *testing.T) {
	corpus := newFakeCorpus()
	stats := &fakeStats{}
	resolver := newTestResolver(corpus, stats)

	rating := resolver.Resolve(context.Background(), &MailRecord{Subject: "maybe"}, &ScoreResult{Rating: 55})

	assert.Equal(t, 55, rating)
	require.Len(t, corpus.inserted, 1)
	assert.Equal(t, StateMaybeTest, corpus.inserted[0].State)
}

func TestResolveMaybeTestDuplicateClampsToFloor(t *testing.T) {
	corpus := newFakeCorpus()
	stats := &fakeStats{}
	resolver := newTestResolver(corpus, stats)

	score := &ScoreResult{
		Rating:     10,
		Candidates: []*CorpusRecord{{ID: 3, State: StateMaybeTest, Rating: 40}},
	}
	rating := resolver.Resolve(context.Background(), &MailRecord{}, score)

	assert.Equal(t, 50, rating)
	assert.True(t, stats.has(CheckpointSimilarInMaybeTest))
	assert.Empty(t, corpus.deleted)
}

func TestResolveSecondaryCorroborationSupersedes(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.usernames = []string{"jeremy"}
	corpus.links["http://known.example.com/x"] = &LinkStat{
		Link: "http://known.example.com/x", Counter: 5, Rating: 85,
	}
	stats := &fakeStats{}
	resolver := newTestResolver(corpus, stats)

	stored := &CorpusRecord{
		ID:            9,
		State:         StateMaybeTest,
		Rating:        30,
		BodyPlain:     "plain text without the name",
		HasAttachment: true,
	}
	rec := &MailRecord{
		BodyPlain: "hi jeremy, see http://known.example.com/x",
		Links:     []string{"http://known.example.com/x"},
	}
	// rating delta 17 + attachment mismatch 17 + username leak 17 +
	// reputable link 15 = 66
	rating := resolver.Resolve(context.Background(), rec, &ScoreResult{
		Rating:     60,
		Candidates: []*CorpusRecord{stored},
	})

	assert.Equal(t, 60, rating)
	assert.Equal(t, []int64{9}, corpus.deleted)
	require.Len(t, corpus.inserted, 1)
	assert.Equal(t, StateTest, corpus.inserted[0].State)
	assert.Empty(t, corpus.promoted)
}

func TestSecondaryScoreMonotonic(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.links["http://known.example.com/x"] = &LinkStat{
		Link: "http://known.example.com/x", Counter: 5, Rating: 85,
	}
	resolver := newTestResolver(corpus, &fakeStats{})
	usernames := []string{"jeremy"}
	stored := &CorpusRecord{Rating: 30, BodyPlain: "no name here", HasAttachment: true}

	steps := []*MailRecord{
		{BodyPlain: "nothing", Attachments: []Attachment{{Filename: "a"}}},
		{BodyPlain: "nothing"},
		{BodyPlain: "hi jeremy"},
		{BodyPlain: "hi jeremy", Links: []string{"http://known.example.com/x"}},
	}
	prev := -1
	for i, rec := range steps {
		got := resolver.secondaryScore(context.Background(), rec, 60, stored, usernames)
		assert.GreaterOrEqual(t, got, prev, "step %d", i)
		prev = got
	}
	assert.GreaterOrEqual(t, prev, secondaryPromoteThreshold)
}

func TestResolvePromotesSurvivingCandidates(t *testing.T) {
	corpus := newFakeCorpus()
	stats := &fakeStats{}
	resolver := newTestResolver(corpus, stats)

	stored := &CorpusRecord{ID: 4, State: StateMaybeTest, Rating: 55, BodyPlain: "same text"}
	rec := &MailRecord{BodyPlain: "same text"}
	rating := resolver.Resolve(context.Background(), rec, &ScoreResult{
		Rating:     75,
		Candidates: []*CorpusRecord{stored},
	})

	assert.Equal(t, 75, rating)
	// corroboration only reaches 17 (rating delta), so the stored record
	// survives and the high rating promotes it instead
	assert.Empty(t, corpus.deleted)
	assert.Equal(t, []int64{4}, corpus.promoted)
}

func TestResolvePromotesOnRecipientReuse(t *testing.T) {
	corpus := newFakeCorpus()
	resolver := newTestResolver(corpus, &fakeStats{})

	stored := &CorpusRecord{ID: 11, State: StateMaybeTest, Rating: 65, BodyPlain: "x"}
	rating := resolver.Resolve(context.Background(), &MailRecord{BodyPlain: "x"}, &ScoreResult{
		Rating:          55,
		RecipientReused: true,
		Candidates:      []*CorpusRecord{stored},
	})

	assert.Equal(t, 55, rating)
	assert.Equal(t, []int64{11}, corpus.promoted)
}

func TestResolveWritesBackLinkRatings(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.links["http://a.example.com/x"] = &LinkStat{Link: "http://a.example.com/x", Counter: 2, Rating: 20}
	corpus.links["http://b.example.com/y"] = &LinkStat{Link: "http://b.example.com/y", Counter: 2, Rating: 95}
	resolver := newTestResolver(corpus, &fakeStats{})

	rec := &MailRecord{
		BodyPlain: "links",
		Links:     []string{"http://a.example.com/x", "http://b.example.com/y"},
	}
	resolver.Resolve(context.Background(), rec, &ScoreResult{Rating: 80})

	assert.Equal(t, 80, corpus.linkRatings["http://a.example.com/x"])
	// stored rating already higher, left alone
	_, touched := corpus.linkRatings["http://b.example.com/y"]
	assert.False(t, touched)
}

func TestResolveInsertsNewLinksAboveFloor(t *testing.T) {
	corpus := newFakeCorpus()
	resolver := newTestResolver(corpus, &fakeStats{})

	resolver.Resolve(context.Background(), &MailRecord{}, &ScoreResult{
		Rating:   55,
		NewLinks: []string{"http://fresh.example.com/z"},
	})
	require.Len(t, corpus.insertedLinks, 1)
	assert.Equal(t, &LinkStat{Link: "http://fresh.example.com/z", Counter: 1, Rating: 55}, corpus.insertedLinks[0])

	corpus.insertedLinks = nil
	resolver.Resolve(context.Background(), &MailRecord{}, &ScoreResult{
		Rating:   30,
		NewLinks: []string{"http://fresh.example.com/z"},
	})
	assert.Empty(t, corpus.insertedLinks)
}

func TestClampRatingBounds(t *testing.T) {
	assert.Equal(t, 100, ClampRating(250))
	assert.Equal(t, 0, ClampRating(-40))
	assert.Equal(t, 73, ClampRating(73))
}
