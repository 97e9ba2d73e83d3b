package analyzer

import (
	"context"
	"math"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// realWordTags are the part-of-speech tags counted as real-world words:
// nouns, proper nouns and verb forms.
var realWordTags = map[string]struct{}{
	"NN": {}, "NNS": {}, "NNP": {}, "NNPS": {},
	"VB": {}, "VBD": {}, "VBG": {}, "VBN": {}, "VBP": {}, "VBZ": {},
}

// skippedEntityLabels never count toward the dominant topic: numbers and
// dates say nothing about what a message is about.
var skippedEntityLabels = map[string]struct{}{
	"PERCENT": {}, "CARDINAL": {}, "DATE": {},
}

// Prose analyzes text in-process with a statistical NLP model. Tagging a
// document is CPU-bound and can be slow on large bodies, so each call runs
// under the caller's context.
type Prose struct {
	logger *zap.Logger
}

// NewProse creates the local analyzer.
func NewProse(logger *zap.Logger) *Prose {
	return &Prose{logger: logger}
}

func (*Prose) Enabled() bool { return true }

// Analyze tags the text and summarizes its vocabulary and entities.
func (p *Prose) Analyze(ctx context.Context, text string) (*core.TextAnalysis, error) {
	type result struct {
		analysis *core.TextAnalysis
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		analysis, err := p.analyze(text)
		ch <- result{analysis, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.analysis, res.err
	}
}

func (p *Prose) analyze(text string) (*core.TextAnalysis, error) {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, err
	}

	analysis := &core.TextAnalysis{}
	for _, tok := range doc.Tokens() {
		if len(tok.Text) <= 2 {
			continue
		}
		if _, ok := realWordTags[tok.Tag]; ok {
			analysis.RealWordCount++
		}
	}

	labelCounts := make(map[string]int)
	topicCounts := make(map[string]map[string]int)
	for _, ent := range doc.Entities() {
		if _, skip := skippedEntityLabels[ent.Label]; skip {
			continue
		}
		labelCounts[ent.Label]++
		if topicCounts[ent.Label] == nil {
			topicCounts[ent.Label] = make(map[string]int)
		}
		topicCounts[ent.Label][strings.ToLower(ent.Text)]++
	}
	for label, count := range labelCounts {
		if count > analysis.DominantCount {
			analysis.DominantLabel = label
			analysis.DominantCount = count
		}
	}
	if analysis.DominantLabel != "" {
		best := 0
		for topic, count := range topicCounts[analysis.DominantLabel] {
			if count > best {
				analysis.DominantTopic = topic
				best = count
			}
		}
	}

	p.logger.Debug("text analyzed",
		zap.Int("real_words", analysis.RealWordCount),
		zap.String("dominant_label", analysis.DominantLabel),
		zap.Int("dominant_count", analysis.DominantCount))
	return analysis, nil
}

// Similarity scores two texts by cosine similarity over their lowercased
// token frequencies.
func (p *Prose) Similarity(ctx context.Context, a, b string) (float64, error) {
	type result struct {
		score float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		score, err := p.similarity(a, b)
		ch <- result{score, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		return res.score, res.err
	}
}

func (p *Prose) similarity(a, b string) (float64, error) {
	freqA, err := tokenFrequencies(a)
	if err != nil {
		return 0, err
	}
	freqB, err := tokenFrequencies(b)
	if err != nil {
		return 0, err
	}
	return cosine(freqA, freqB), nil
}

func tokenFrequencies(text string) (map[string]float64, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		return nil, err
	}
	freq := make(map[string]float64)
	for _, tok := range doc.Tokens() {
		freq[strings.ToLower(tok.Text)]++
	}
	return freq, nil
}

func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for term, fa := range a {
		normA += fa * fa
		if fb, ok := b[term]; ok {
			dot += fa * fb
		}
	}
	for _, fb := range b {
		normB += fb * fb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
