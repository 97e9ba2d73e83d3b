// Package openai implements the text-analysis capability with OpenAI chat
// models.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// Analyzer is an implementation of the TextAnalyzer interface using OpenAI.
type Analyzer struct {
	client      *openai.Client
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	maxBodySize int
	logger      *zap.Logger
}

// analysisResponse is the structured response expected from the model.
type analysisResponse struct {
	RealWordCount       int    `json:"real_word_count"`
	DominantEntityLabel string `json:"dominant_entity_label"`
	DominantEntityCount int    `json:"dominant_entity_count"`
	DominantTopic       string `json:"dominant_topic"`
}

type similarityResponse struct {
	Similarity float64 `json:"similarity"`
}

const analyzePromptFormat = `You are a text analysis system for a mail honeypot. Analyze the following text.
Respond with a JSON object containing:
- real_word_count: number of real-world words longer than two characters (nouns, proper nouns and verbs)
- dominant_entity_label: the most frequent named-entity label, ignoring percent, cardinal and date entities (empty string if none)
- dominant_entity_count: how many entities carry that label
- dominant_topic: the most repeated entity text under that label (empty string if none)

Text:
%s

Respond only with the JSON object and nothing else.`

const similarityPromptFormat = `You are a text analysis system for a mail honeypot. Compare the two texts below.
Respond with a JSON object containing:
- similarity: number between 0 and 1 (1 means semantically identical)

Text A:
%s

Text B:
%s

Respond only with the JSON object and nothing else.`

// NewAnalyzer creates a new OpenAI-backed analyzer.
func NewAnalyzer(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

func (*Analyzer) Enabled() bool { return true }

// Analyze asks the model for the semantic summary of one text.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*core.TextAnalysis, error) {
	prompt := fmt.Sprintf(analyzePromptFormat, a.truncateBody(text))
	responseText, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var parsed analysisResponse
	if err := unmarshalModelJSON(responseText, &parsed); err != nil {
		return nil, err
	}
	return &core.TextAnalysis{
		RealWordCount: parsed.RealWordCount,
		DominantLabel: parsed.DominantEntityLabel,
		DominantCount: parsed.DominantEntityCount,
		DominantTopic: parsed.DominantTopic,
	}, nil
}

// Similarity asks the model to score two texts in [0,1].
func (a *Analyzer) Similarity(ctx context.Context, textA, textB string) (float64, error) {
	prompt := fmt.Sprintf(similarityPromptFormat, a.truncateBody(textA), a.truncateBody(textB))
	responseText, err := a.complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	var parsed similarityResponse
	if err := unmarshalModelJSON(responseText, &parsed); err != nil {
		return 0, err
	}
	return parsed.Similarity, nil
}

func (a *Analyzer) complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: a.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a text analysis system. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		TopP:        a.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: "json",
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// truncateBody truncates the text if it exceeds the maximum size.
func (a *Analyzer) truncateBody(body string) string {
	if a.maxBodySize <= 0 || len(body) <= a.maxBodySize {
		return body
	}
	truncated := body[:a.maxBodySize]
	a.logger.Debug("text truncated",
		zap.Int("original_size", len(body)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", a.maxBodySize))
	return truncated + "\n[... Content truncated due to size limits ...]"
}

// unmarshalModelJSON parses the model output, falling back to extracting the
// outermost JSON object when the model wrapped it in prose.
func unmarshalModelJSON(responseText string, v any) error {
	if err := json.Unmarshal([]byte(responseText), v); err == nil {
		return nil
	}

	jsonStart := -1
	jsonEnd := -1
	for i := 0; i < len(responseText); i++ {
		if responseText[i] == '{' {
			jsonStart = i
			break
		}
	}
	for i := len(responseText) - 1; i >= 0; i-- {
		if responseText[i] == '}' {
			jsonEnd = i + 1
			break
		}
	}
	if jsonStart < 0 || jsonStart >= jsonEnd {
		return fmt.Errorf("failed to extract JSON from LLM response")
	}
	if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), v); err != nil {
		return fmt.Errorf("failed to parse LLM response as JSON: %w", err)
	}
	return nil
}
