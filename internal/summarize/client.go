package summarize

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/zulandar/stenograph/internal/settings"
	"gorm.io/gorm"
)

// completionModel is the model used for all summarization calls.
const completionModel = anthropic.ModelClaude3_5HaikuLatest

// completionMaxTokens bounds each completion response.
const completionMaxTokens = 1000

// NewCompletion builds a CompletionFunc backed by the Anthropic
// Messages API, configured from tenant settings: api key, optional
// base URL and optional gateway token header.
func NewCompletion(db *gorm.DB, tenantID uint) (CompletionFunc, error) {
	apiKey, err := settings.Get(db, tenantID, settings.AnthropicAPIKey)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}

	if baseURL, err := settings.Get(db, tenantID, settings.AnthropicBaseURL); err == nil && baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if token, err := settings.Get(db, tenantID, settings.AIGatewayToken); err == nil && token != "" {
		opts = append(opts, option.WithHeader("cf-aig-authorization", "Bearer "+token))
	}

	client := anthropic.NewClient(opts...)

	return func(ctx context.Context, prompt string) (string, error) {
		msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     completionModel,
			MaxTokens: completionMaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", fmt.Errorf("summarize: completion call: %w", err)
		}
		for _, block := range msg.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", nil
	}, nil
}
