package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(corpus *fakeCorpus, analyzer TextAnalyzer, stats *fakeStats, opts EngineOptions) *Engine {
	return NewEngine(corpus, analyzer, stats, exactCompare, opts, zap.NewNop())
}

// outsideWindow is an arrival time outside the 12-18h scoring window.
var outsideWindow = time.Date(2026, time.March, 3, 9, 30, 0, 0, time.UTC)

// insideWindow is an arrival time inside the 12-18h scoring window.
var insideWindow = time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC)

func TestScorePasswordInBodyPlain(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.passwords = []string{"s3cr3tpass"}
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyPlain:   "your password is s3cr3tpass please log in",
		ArrivalTime: outsideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Rating)
	assert.True(t, stats.has(CheckpointPasswordInBodyPlain))
}

func TestScorePasswordOutweighsPenalties(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.passwords = []string{"s3cr3tpass"}
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyPlain:   "s3cr3tpass",
		Attachments: []Attachment{{Filename: "a.zip"}},
		ArrivalTime: outsideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Rating, 90)
}

func TestScorePasswordInBodyHTMLOnly(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.passwords = []string{"s3cr3tpass"}
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyHTML:    "<p>your password is s3cr3tpass please log in</p>",
		ArrivalTime: outsideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 98, res.Rating)
	assert.True(t, stats.has(CheckpointPasswordInBodyHTML))
	assert.False(t, stats.has(CheckpointPasswordInBodyPlain))
}

func TestScoreUsernameShortBodyInsideTimeWindow(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.usernames = []string{"jeremy"}
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyPlain:   "hello jeremy",
		Subject:     "hi",
		ArrivalTime: insideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 55, res.Rating)
	assert.True(t, stats.has(CheckpointUsernameInBodyPlain))
	assert.True(t, stats.has(CheckpointArrivalTimeWindow))
}

func TestScoreUsernameLongBody(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.usernames = []string{"jeremy"}
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyPlain:   "jeremy " + strings.Repeat("lorem ipsum ", 50),
		Subject:     "newsletter",
		ArrivalTime: outsideWindow,
	}
	require.Greater(t, len(rec.BodyPlain), 500)

	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Rating)
}

func TestScoreUsernameWithAttachment(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.usernames = []string{"jeremy"}
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyPlain:   "hi jeremy",
		Attachments: []Attachment{{Filename: "invoice.pdf"}},
		ArrivalTime: outsideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 40, res.Rating)
	assert.True(t, stats.has(CheckpointAttachmentPenalty))
}

func TestScoreUsernameWithUnknownLinkInsideWindow(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.usernames = []string{"jeremy"}
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyPlain:   "hi jeremy visit http://shady.example.net/offer",
		Links:       []string{"http://shady.example.net/offer"},
		ArrivalTime: insideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 45, res.Rating)
	assert.True(t, stats.has(CheckpointLinkPenalty))
	assert.Equal(t, []string{"http://shady.example.net/offer"}, res.NewLinks)
}

func TestScoreFrequentLinkSuppressesPenalty(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.usernames = []string{"jeremy"}
	corpus.links["http://shady.example.net/offer"] = &LinkStat{
		Link: "http://shady.example.net/offer", Counter: 2, Rating: 10,
	}
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyPlain:   "hi jeremy visit http://shady.example.net/offer",
		Links:       []string{"http://shady.example.net/offer"},
		ArrivalTime: outsideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Rating)
	assert.False(t, stats.has(CheckpointLinkPenalty))
	// the seen-counter moved even though the penalty was suppressed
	assert.Equal(t, 3, corpus.links["http://shady.example.net/offer"].Counter)
}

func TestScoreTestWordSubjectWithAttachmentClampsToZero(t *testing.T) {
	corpus := newFakeCorpus()
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		Subject:     "test",
		BodyPlain:   "nothing of note",
		Attachments: []Attachment{{Filename: "x.bin"}},
		ArrivalTime: outsideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rating)
	assert.True(t, stats.has(CheckpointTestWordInSubject))
}

func TestScoreHoneypotAddrInSubject(t *testing.T) {
	corpus := newFakeCorpus()
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{
		HoneypotAddr: "203.0.113.25",
	})

	rec := &MailRecord{
		Subject:     "delivery to 203.0.113.25",
		ArrivalTime: outsideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 70, res.Rating)
	assert.True(t, stats.has(CheckpointHoneypotAddrInSubject))
}

func TestScoreRecipientReuseForcesHundred(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.testRecipients["victim@example.org"] = true
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{})

	rec := &MailRecord{
		BodyPlain:   "plain message",
		Recipients:  []Address{{Email: "victim@example.org"}},
		ArrivalTime: outsideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Rating)
	assert.True(t, res.RecipientReused)
	assert.True(t, stats.has(CheckpointRecipientInTest))
}

func TestScoreRuleMatchForcesHundred(t *testing.T) {
	corpus := newFakeCorpus()
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{
		Rules: []RuleMatcher{fixedRule{matched: true}},
	})

	rec := &MailRecord{BodyPlain: "anything", ArrivalTime: outsideWindow}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Rating)
}

func TestScoreSemanticChecks(t *testing.T) {
	tests := []struct {
		name     string
		analysis TextAnalysis
		rec      *MailRecord
		want     int
	}{
		{
			name:     "many real words subtract",
			analysis: TextAnalysis{RealWordCount: 12},
			rec:      &MailRecord{BodyPlain: "a long natural text", ArrivalTime: outsideWindow},
			want:     0, // -15 clamped
		},
		{
			name:     "few real words add",
			analysis: TextAnalysis{RealWordCount: 1},
			rec:      &MailRecord{BodyPlain: "xp flk q", ArrivalTime: outsideWindow},
			want:     10,
		},
		{
			name:     "topic repetition subtracts",
			analysis: TextAnalysis{RealWordCount: 5, DominantLabel: "GPE", DominantCount: 4, DominantTopic: "prague"},
			rec:      &MailRecord{BodyPlain: "prague prague prague", ArrivalTime: outsideWindow},
			want:     0, // -10 clamped
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corpus := newFakeCorpus()
			stats := &fakeStats{}
			engine := newTestEngine(corpus, scriptedAnalyzer{analysis: tt.analysis}, stats, EngineOptions{
				AnalyzeText: true,
			})
			res, err := engine.Score(context.Background(), tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Rating)
		})
	}
}

func TestScoreRatingAlwaysClamped(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.passwords = []string{"pw"}
	corpus.testRecipients["victim@example.org"] = true
	stats := &fakeStats{}
	engine := newTestEngine(corpus, disabledAnalyzer{}, stats, EngineOptions{
		HoneypotAddr: "203.0.113.25",
	})

	rec := &MailRecord{
		Subject:     "test 203.0.113.25",
		BodyPlain:   "pw 203.0.113.25 test",
		Recipients:  []Address{{Email: "victim@example.org"}},
		ArrivalTime: insideWindow,
	}
	res, err := engine.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Rating)
}

func TestSimilarCandidatesFilteredBySemanticSimilarity(t *testing.T) {
	stored := &CorpusRecord{ID: 1, BodyPlain: "quarterly report attached", Fingerprint: "FP", State: StateMaybeTest}
	corpus := newFakeCorpus()
	corpus.similar = []*CorpusRecord{stored}
	stats := &fakeStats{}

	rec := &MailRecord{BodyPlain: "quarterly report attached", Fingerprint: "FP", ArrivalTime: outsideWindow}

	lowSim := newTestEngine(corpus, scriptedAnalyzer{similarity: 0.2}, stats, EngineOptions{AnalyzeText: true})
	res, err := lowSim.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)

	highSim := newTestEngine(corpus, scriptedAnalyzer{similarity: 0.9}, stats, EngineOptions{AnalyzeText: true})
	res, err = highSim.Score(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, int64(1), res.Candidates[0].ID)
}

// fixedRule always returns the same verdict.
type fixedRule struct{ matched bool }

func (r fixedRule) Match(*MailRecord) (bool, error) { return r.matched, nil }
func (fixedRule) Label() string                     { return "fixed" }
