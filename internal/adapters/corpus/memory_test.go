package corpus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

func exactCompare(a, b string) int {
	if a == b {
		return 100
	}
	return 0
}

func newTestStore() *MemoryStore {
	return NewMemoryStore(exactCompare, zap.NewNop())
}

func testRecord(state core.ClassificationState, rating int) *core.CorpusRecord {
	return &core.CorpusRecord{
		Subject:     "invoice overdue",
		BodyPlain:   "please see the attached invoice",
		FromAddress: "billing@example.net",
		Fingerprint: "T1AAAA",
		Recipients:  []core.Address{{Email: "victim@honeypot.example"}},
		State:       state,
		Rating:      rating,
	}
}

func TestInsertAndFindSimilar(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	id, err := s.InsertMail(ctx, testRecord(core.StateMaybeTest, 55))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	hits, err := s.FindSimilar(ctx, "T1AAAA", 90)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
	assert.Equal(t, core.StateMaybeTest, hits[0].State)

	hits, err = s.FindSimilar(ctx, "T1BBBB", 90)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFindSimilarReturnsCopies(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.InsertMail(ctx, testRecord(core.StateMaybeTest, 55))
	require.NoError(t, err)

	hits, err := s.FindSimilar(ctx, "T1AAAA", 90)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	hits[0].Rating = 99
	hits[0].Recipients[0].Email = "mutated@example.net"

	again, err := s.FindSimilar(ctx, "T1AAAA", 90)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 55, again[0].Rating)
	assert.Equal(t, "victim@honeypot.example", again[0].Recipients[0].Email)
}

func TestPromoteToTest(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	id, err := s.InsertMail(ctx, testRecord(core.StateMaybeTest, 70))
	require.NoError(t, err)
	require.NoError(t, s.PromoteToTest(ctx, id))

	hits, err := s.FindSimilar(ctx, "T1AAAA", 90)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, core.StateTest, hits[0].State)

	// Promoting an already promoted record is a no-op.
	require.NoError(t, s.PromoteToTest(ctx, id))
}

func TestDeleteMaybeTestGuardsState(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	maybeID, err := s.InsertMail(ctx, testRecord(core.StateMaybeTest, 55))
	require.NoError(t, err)
	testID, err := s.InsertMail(ctx, testRecord(core.StateTest, 100))
	require.NoError(t, err)

	require.NoError(t, s.DeleteMaybeTest(ctx, maybeID))
	require.NoError(t, s.DeleteMaybeTest(ctx, testID))

	hits, err := s.FindSimilar(ctx, "T1AAAA", 90)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, testID, hits[0].ID)
}

func TestRecipientSeenInTest(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.InsertMail(ctx, testRecord(core.StateMaybeTest, 55))
	require.NoError(t, err)

	seen, err := s.RecipientSeenInTest(ctx, "victim@honeypot.example")
	require.NoError(t, err)
	assert.False(t, seen, "maybe_test recipients must not count")

	_, err = s.InsertMail(ctx, testRecord(core.StateTest, 100))
	require.NoError(t, err)

	seen, err = s.RecipientSeenInTest(ctx, "victim@honeypot.example")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.RecipientSeenInTest(ctx, "other@honeypot.example")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestLinkLifecycle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	stat, err := s.Link(ctx, "http://pay.example.net/x")
	require.NoError(t, err)
	assert.Nil(t, stat)

	stat, err = s.IncrementLink(ctx, "http://pay.example.net/x")
	require.NoError(t, err)
	assert.Nil(t, stat, "incrementing an unknown link reports absence")

	require.NoError(t, s.InsertLink(ctx, &core.LinkStat{Link: "http://pay.example.net/x", Counter: 1, Rating: 55}))
	// Re-inserting the same link keeps the original row.
	require.NoError(t, s.InsertLink(ctx, &core.LinkStat{Link: "http://pay.example.net/x", Counter: 9, Rating: 1}))

	stat, err = s.IncrementLink(ctx, "http://pay.example.net/x")
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, 2, stat.Counter)
	assert.Equal(t, 55, stat.Rating)

	require.NoError(t, s.UpdateLinkRating(ctx, "http://pay.example.net/x", 250))
	stat, err = s.Link(ctx, "http://pay.example.net/x")
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, 100, stat.Rating, "ratings are clamped on write")
}

func TestSeedCredentials(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	creds := []core.Credential{
		{Username: "jdoe", Password: "hunter2"},
		{Username: "asmith", Password: "letmein"},
	}
	require.NoError(t, s.SeedCredentials(ctx, creds))
	// Seeding twice must not duplicate.
	require.NoError(t, s.SeedCredentials(ctx, creds))

	passwords, err := s.Passwords(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hunter2", "letmein"}, passwords)

	usernames, err := s.Usernames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"jdoe", "asmith"}, usernames)
}
