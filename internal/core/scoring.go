package core

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// SimilarityThreshold is the minimum fingerprint comparison score for two
	// messages to count as near-duplicates.
	SimilarityThreshold = 50

	// RelayThreshold is the rating a message needs before the gatekeeper will
	// consider forwarding it.
	RelayThreshold = 70

	// fieldSimilarityThreshold gates the NLP-assisted similarity check: at
	// least one of body-plain, body-html and subject must score above it.
	fieldSimilarityThreshold = 0.75

	longBodyLength = 500
)

// URLPattern matches http(s), www-prefixed and bare-domain links in mail
// bodies.
var URLPattern = regexp.MustCompile(`(?i)\b((?:https?://|www\d{0,3}[.]|[a-z0-9.\-]+[.][a-z]{2,4}/)(?:[^\s()<>]+|\(([^\s()<>]+|(\([^\s()<>]+\)))*\))+(?:\(([^\s()<>]+|(\([^\s()<>]+\)))*\)|[^\s` + "`" + `!()\[\]{};:'".,<>?«»“”‘’]))`)

// linkAllowlistPattern matches bare www.host.tld links which never attract
// the unknown-link penalty.
var linkAllowlistPattern = regexp.MustCompile(`^www\d{0,3}[.][a-z0-9\-]+[.][a-z]{2,4}$`)

// ScoreResult carries the engine's rating together with the data the
// resolver needs afterwards.
type ScoreResult struct {
	Rating          int
	Candidates      []*CorpusRecord
	RecipientReused bool

	// NewLinks are links not yet in the corpus; the resolver inserts them
	// once the final rating is known.
	NewLinks []string
}

// EngineOptions is the static configuration of a scoring engine.
type EngineOptions struct {
	// HoneypotAddr is the honeypot's own listen address; a literal mention of
	// it in a message is a strong probe signal.
	HoneypotAddr string

	// AnalyzeText enables the semantic-analysis check and the NLP-assisted
	// similarity filter.
	AnalyzeText bool

	// AnalysisTimeout bounds each analyzer call; an expired call is skipped.
	AnalysisTimeout time.Duration

	// Rules is the parsed rule file; a matching rule forces the rating to 100.
	Rules []RuleMatcher
}

// Engine computes the probe-confidence rating of a normalized message by
// running an ordered sequence of checks. Later checks read the rating set by
// earlier ones, so the order is part of the contract.
type Engine struct {
	corpus   Corpus
	analyzer TextAnalyzer
	stats    StatsRecorder
	compare  CompareFunc
	opts     EngineOptions
	logger   *zap.Logger
}

// NewEngine creates a scoring engine.
func NewEngine(corpus Corpus, analyzer TextAnalyzer, stats StatsRecorder, compare CompareFunc, opts EngineOptions, logger *zap.Logger) *Engine {
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 10 * time.Second
	}
	return &Engine{
		corpus:   corpus,
		analyzer: analyzer,
		stats:    stats,
		compare:  compare,
		opts:     opts,
		logger:   logger,
	}
}

// Score runs every check against the record and returns the clamped rating
// together with the near-duplicate candidates. Auxiliary failures (corpus
// reads, analyzer calls, rule evaluation) degrade to "check not applied".
func (e *Engine) Score(ctx context.Context, rec *MailRecord) (*ScoreResult, error) {
	res := &ScoreResult{}
	rating := 0

	// 1. credential match
	passwords, err := e.corpus.Passwords(ctx)
	if err != nil {
		e.logger.Error("password lookup failed, check skipped", zap.Error(err))
	}
	rating = e.checkPasswords(rec, passwords, rating)

	// 2. username match
	usernames, err := e.corpus.Usernames(ctx)
	if err != nil {
		e.logger.Error("username lookup failed, check skipped", zap.Error(err))
	}
	rating = e.checkUsernames(rec, usernames, rating)

	// 3. attachment presence
	if rec.HasAttachment() {
		rating -= 10
		e.stats.Record(CheckpointAttachmentPenalty)
	}

	// 4. test-word match
	rating = e.checkTestWord(rec, rating)

	// 5. recipient reuse
	res.RecipientReused = e.recipientReused(ctx, rec)
	if res.RecipientReused {
		e.stats.Record(CheckpointRecipientInTest)
		if rating < RelayThreshold {
			rating = 100
		}
	}

	// 6. time of day: probes cluster in the 12-18h window
	if h := rec.ArrivalTime.Hour(); h >= 12 && h <= 18 {
		rating += 5
		e.stats.Record(CheckpointArrivalTimeWindow)
	}

	// 7. honeypot address mention
	rating = e.checkHoneypotAddr(rec, rating)

	// 8. semantic analysis (optional)
	if e.opts.AnalyzeText && e.analyzer.Enabled() {
		rating = e.analyzeBody(ctx, rec, rating)
	}

	// 9. link reputation
	if len(rec.Links) > 0 {
		rating = e.checkLinks(ctx, rec, rating, res)
	}

	// 10. rule-file match
	for _, rule := range e.opts.Rules {
		matched, err := rule.Match(rec)
		if err != nil {
			e.logger.Error("rule evaluation failed, rule skipped",
				zap.String("rule", rule.Label()), zap.Error(err))
			continue
		}
		if matched {
			e.logger.Info("message matched rule", zap.String("rule", rule.Label()))
			rating = 100
		}
	}

	res.Candidates = e.similarCandidates(ctx, rec)
	res.Rating = clampRating(rating)
	return res, nil
}

func (e *Engine) checkPasswords(rec *MailRecord, passwords []string, rating int) int {
	switch {
	case containsAny(rec.BodyPlain, passwords):
		e.logger.Info("password found in body_plain", zap.String("body", truncate(rec.BodyPlain, 50)))
		rating = 100
		e.stats.Record(CheckpointPasswordInBodyPlain)
	case containsAny(rec.Subject, passwords):
		e.logger.Info("password found in subject", zap.String("subject", truncate(rec.Subject, 50)))
		rating = 99
		e.stats.Record(CheckpointPasswordInSubject)
	case containsAny(rec.BodyHTML, passwords):
		e.logger.Info("password found in body_html", zap.String("body", truncate(rec.BodyHTML, 50)))
		rating = 98
		e.stats.Record(CheckpointPasswordInBodyHTML)
	}
	return rating
}

func (e *Engine) checkUsernames(rec *MailRecord, usernames []string, rating int) int {
	switch {
	case containsAny(rec.BodyPlain, usernames):
		return e.usernameInBodyPlain(rec, rating)
	case containsAny(rec.Subject, usernames):
		return e.usernameInSubject(rec, rating)
	case containsAny(rec.BodyHTML, usernames):
		return e.usernameInBodyHTML(rec, rating)
	}
	return rating
}

func (e *Engine) usernameInBodyPlain(rec *MailRecord, rating int) int {
	switch {
	case rating == 100:
		e.logger.Info("username and password found in body_plain")
	case len(rec.BodyPlain) > longBodyLength && rating < 98:
		// long bodies with no password look less like a synthetic probe
		rating += 30
		e.stats.Record(CheckpointUsernameInBodyPlain)
	case rating < 98:
		rating += 50
		e.stats.Record(CheckpointUsernameInBodyPlain)
	case rec.Subject == "" && rating < 98:
		// evasive probes sometimes drop the subject entirely
		rating += 40
		e.stats.Record(CheckpointUsernameNoSubject)
	}
	return rating
}

func (e *Engine) usernameInSubject(rec *MailRecord, rating int) int {
	switch {
	case rating == 99:
		e.logger.Info("username and password found in subject")
	case (len(rec.BodyPlain) > longBodyLength || len(rec.BodyHTML) > longBodyLength) && rating < 98:
		rating += 30
		e.stats.Record(CheckpointUsernameInSubject)
	case rating < 98:
		rating += 50
		e.stats.Record(CheckpointUsernameInSubject)
	}
	return rating
}

func (e *Engine) usernameInBodyHTML(rec *MailRecord, rating int) int {
	if rating == 98 {
		e.logger.Info("username and password found in body_html")
		return rating
	}
	rating += 50
	e.stats.Record(CheckpointUsernameInBodyHTML)
	return rating
}

func (e *Engine) checkTestWord(rec *MailRecord, rating int) int {
	switch {
	case hasTestWord(rec.BodyPlain):
		rating += 5
		e.stats.Record(CheckpointTestWordInBodyPlain)
	case hasTestWord(rec.Subject):
		rating += 10
		e.stats.Record(CheckpointTestWordInSubject)
	case hasTestWord(rec.BodyHTML):
		rating += 5
		e.stats.Record(CheckpointTestWordInBodyHTML)
	}
	return rating
}

func (e *Engine) recipientReused(ctx context.Context, rec *MailRecord) bool {
	for _, to := range rec.Recipients {
		seen, err := e.corpus.RecipientSeenInTest(ctx, to.Email)
		if err != nil {
			e.logger.Error("recipient lookup failed", zap.String("recipient", to.Email), zap.Error(err))
			continue
		}
		if seen {
			e.logger.Info("recipient was used in a test mail", zap.String("recipient", to.Email))
			return true
		}
	}
	return false
}

func (e *Engine) checkHoneypotAddr(rec *MailRecord, rating int) int {
	addr := e.opts.HoneypotAddr
	if addr == "" {
		return rating
	}
	switch {
	case strings.Contains(rec.BodyPlain, addr):
		e.logger.Info("honeypot address found in body_plain", zap.String("addr", addr))
		rating += 70
		e.stats.Record(CheckpointHoneypotAddrInBodyPlain)
	case strings.Contains(rec.Subject, addr):
		e.logger.Info("honeypot address found in subject", zap.String("addr", addr))
		rating += 70
		e.stats.Record(CheckpointHoneypotAddrInSubject)
	case strings.Contains(rec.BodyHTML, addr):
		e.logger.Info("honeypot address found in body_html", zap.String("addr", addr))
		rating += 70
		e.stats.Record(CheckpointHoneypotAddrInBodyHTML)
	}
	return rating
}

func (e *Engine) analyzeBody(ctx context.Context, rec *MailRecord, rating int) int {
	var text string
	switch {
	case rec.BodyPlain != "":
		text = rec.BodyPlain
	case rec.BodyHTML != "":
		text = rec.BodyHTML
	default:
		return rating
	}
	text = URLPattern.ReplaceAllString(text, "")

	actx, cancel := context.WithTimeout(ctx, e.opts.AnalysisTimeout)
	defer cancel()
	analysis, err := e.analyzer.Analyze(actx, text)
	if err != nil {
		e.logger.Error("text analysis failed, check skipped", zap.Error(err))
		return rating
	}

	switch {
	case analysis.RealWordCount >= 10:
		// too much natural language for a synthetic probe
		rating -= 15
		e.logger.Info("message contains many real-world words", zap.Int("count", analysis.RealWordCount))
		e.stats.Record(CheckpointManyRealWords)
	case analysis.RealWordCount < 3 && len(rec.Links) == 0 && !rec.HasAttachment():
		rating += 10
		e.logger.Info("message contains few real-world words", zap.Int("count", analysis.RealWordCount))
		e.stats.Record(CheckpointFewRealWords)
	}

	if analysis.DominantCount >= 3 {
		rating -= 10
		e.logger.Info("message repeats one topic",
			zap.String("label", analysis.DominantLabel),
			zap.String("topic", analysis.DominantTopic))
		e.stats.Record(CheckpointTopicRepetition)
	}
	return rating
}

func (e *Engine) checkLinks(ctx context.Context, rec *MailRecord, rating int, res *ScoreResult) int {
	penalty := true
	for _, link := range rec.Links {
		stat, err := e.corpus.IncrementLink(ctx, link)
		if err != nil {
			e.logger.Error("link counter update failed", zap.String("link", link), zap.Error(err))
			continue
		}
		if stat == nil {
			res.NewLinks = append(res.NewLinks, link)
			continue
		}
		if stat.Counter >= 3 || stat.Rating >= RelayThreshold || linkAllowlistPattern.MatchString(link) {
			penalty = false
		}
	}
	if penalty {
		rating -= 10
		e.stats.Record(CheckpointLinkPenalty)
	}
	return rating
}

// similarCandidates queries the corpus for fingerprint near-duplicates. With
// analysis enabled a candidate must additionally have one of body-plain,
// body-html or subject semantically similar to the current message.
func (e *Engine) similarCandidates(ctx context.Context, rec *MailRecord) []*CorpusRecord {
	candidates, err := e.corpus.FindSimilar(ctx, rec.Fingerprint, SimilarityThreshold)
	if err != nil {
		e.logger.Error("similarity lookup failed", zap.Error(err))
		return nil
	}
	if !e.opts.AnalyzeText || !e.analyzer.Enabled() {
		return candidates
	}
	var out []*CorpusRecord
	for _, cand := range candidates {
		if e.fieldsSimilar(ctx, rec, cand) {
			out = append(out, cand)
		}
	}
	return out
}

func (e *Engine) fieldsSimilar(ctx context.Context, rec *MailRecord, cand *CorpusRecord) bool {
	pairs := [][2]string{
		{rec.BodyPlain, cand.BodyPlain},
		{rec.BodyHTML, cand.BodyHTML},
		{rec.Subject, cand.Subject},
	}
	for _, pair := range pairs {
		if pair[0] == "" || pair[1] == "" {
			continue
		}
		actx, cancel := context.WithTimeout(ctx, e.opts.AnalysisTimeout)
		sim, err := e.analyzer.Similarity(actx, pair[0], pair[1])
		cancel()
		if err != nil {
			e.logger.Error("similarity scoring failed, falling back to fingerprint only", zap.Error(err))
			return true
		}
		if sim > fieldSimilarityThreshold {
			return true
		}
	}
	return false
}

func containsAny(text string, needles []string) bool {
	if text == "" {
		return false
	}
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func hasTestWord(text string) bool {
	return strings.Contains(text, "test") || strings.Contains(text, "testing")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
