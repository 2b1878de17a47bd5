package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	openAITemperature  = 0.2
	systemPrompt       = "You are an accurate product data assistant that only outputs JSON."
)

// OpenAIConfig configures the direct ChatGPT provider.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	Logger  *slog.Logger
}

// OpenAIEnricher asks OpenAI's chat completion API for product details.
type OpenAIEnricher struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIEnricher creates a direct ChatGPT enricher.
func NewOpenAIEnricher(cfg OpenAIConfig) (*OpenAIEnricher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	logger.Debug("initializing OpenAI enricher", "model", model)
	return &OpenAIEnricher{
		client: openai.NewClientWithConfig(oc),
		model:  model,
		logger: logger,
	}, nil
}

// Enrich implements Enricher.
func (o *OpenAIEnricher) Enrich(ctx context.Context, req Request) (product.Record, error) {
	sku := product.NormalizeSKU(req.SKU)
	if sku == "" {
		return product.Record{}, errors.NewValidation(product.KeySKU, "SKU is required")
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(sku, req.NameHint)},
		},
		Temperature: openAITemperature,
	})
	if err != nil {
		if ctx.Err() == context.Canceled {
			return product.Record{}, errors.NewCancelled("enrich")
		}
		o.logger.Warn("OpenAI call failed", "sku", sku, "error", err)
		return product.Record{}, errors.NewUpstream("enrich_with_ai", fmt.Sprintf("AI call failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return product.Record{}, errors.NewUpstream("enrich_with_ai", "AI returned no choices")
	}

	o.logger.Debug("OpenAI response", "sku", sku, "finish_reason", resp.Choices[0].FinishReason)
	res, err := ParseResult(resp.Choices[0].Message.Content)
	if err != nil {
		return product.Record{}, errors.NewUpstream("enrich_with_ai", err.Error())
	}
	return res.Record(sku), nil
}
