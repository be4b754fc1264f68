package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"
)

const lookupSystemPrompt = `You look up public professional profile details.
Respond with a single JSON object using only these keys:
profile_url, title, city, country, handle.
Omit any key you are not confident about. Respond with {} if unsure.`

// OpenAIProvider implements Provider over an OpenAI-compatible chat API.
// Model responses are free text; the JSON is repaired before parsing and
// anything unparseable becomes an empty result.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIProvider creates an enrichment provider. baseURL may be empty for
// the default API endpoint.
func NewOpenAIProvider(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

// LookupPerson asks the model for a profile record. Failures and unparseable
// responses both return (nil, nil): enrichment is skipped, never fatal.
func (p *OpenAIProvider) LookupPerson(ctx context.Context, name, organizationHint string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf("Find profile details for %q", name)
	if organizationHint != "" {
		prompt += fmt.Sprintf(" who may work at %q", organizationHint)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: lookupSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		p.logger.Debug("enrichment lookup failed", "name", name, "error", err)
		return nil, nil
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	// Repair the model output before unmarshaling; free-text wrappers and
	// trailing commas are common.
	repaired, err := jsonrepair.JSONRepair(resp.Choices[0].Message.Content)
	if err != nil {
		p.logger.Debug("enrichment response unparseable", "name", name, "error", err)
		return nil, nil
	}

	var profile Profile
	if err := json.Unmarshal([]byte(repaired), &profile); err != nil {
		p.logger.Debug("enrichment response unparseable", "name", name, "error", err)
		return nil, nil
	}
	if profile.Empty() {
		return nil, nil
	}
	return &profile, nil
}
