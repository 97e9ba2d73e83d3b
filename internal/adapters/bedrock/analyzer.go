// Package bedrock implements the text-analysis capability with Amazon
// Bedrock models.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// Analyzer is an implementation of the TextAnalyzer interface using Bedrock.
type Analyzer struct {
	client      *bedrockruntime.Client
	modelID     string
	maxTokens   int
	temperature float32
	topP        float32
	maxBodySize int
	logger      *zap.Logger
}

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

// NewAnalyzer creates a new Bedrock-backed analyzer.
func NewAnalyzer(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
) *Analyzer {
	return &Analyzer{
		client:      client,
		modelID:     modelID,
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
	responseText, err := a.invoke(ctx, prompt)
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
	responseText, err := a.invoke(ctx, prompt)
	if err != nil {
		return 0, err
	}
	var parsed similarityResponse
	if err := unmarshalModelJSON(responseText, &parsed); err != nil {
		return 0, err
	}
	return parsed.Similarity, nil
}

// isAnthropicModel checks if the model is an Anthropic Claude model.
func (a *Analyzer) isAnthropicModel() bool {
	return strings.Contains(strings.ToLower(a.modelID), "anthropic")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model.
func (a *Analyzer) isAmazonTitanModel() bool {
	return strings.Contains(strings.ToLower(a.modelID), "titan")
}

func (a *Analyzer) invoke(ctx context.Context, prompt string) (string, error) {
	var payload []byte
	var err error

	if a.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": a.maxTokens,
			"temperature":          a.temperature,
			"top_p":                a.topP,
		})
	} else if a.isAmazonTitanModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": a.maxTokens,
				"temperature":   a.temperature,
				"topP":          a.topP,
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  a.maxTokens,
			"temperature": a.temperature,
			"top_p":       a.topP,
		})
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &a.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	if a.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(resp.Body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	}
	if a.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(resp.Body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	}
	var genericResp struct {
		Completion string `json:"completion"`
		Text       string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal model response: %w", err)
	}
	if genericResp.Completion != "" {
		return genericResp.Completion, nil
	}
	return genericResp.Text, nil
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
