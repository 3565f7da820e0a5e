package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatCompleter is the minimal slice of the OpenAI client we use.
type chatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAITransformer implements Transformer on the OpenAI chat API.
type OpenAITransformer struct {
	chat       chatCompleter
	model      openai.ChatModel
	retryDelay time.Duration
}

// NewOpenAITransformer builds a transformer from an API key.
func NewOpenAITransformer(apiKey string) (*OpenAITransformer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAITransformer{
		chat:       &cli.Chat.Completions,
		model:      openai.ChatModelGPT4oMini,
		retryDelay: 2 * time.Second,
	}, nil
}

const systemPrompt = `You simplify hospital discharge summaries to a 6th-grade
reading level and, when asked, translate them. Respond with JSON only, in the
exact shape of the request: {"simplified": {...}, "translated": {...},
"backTranslated": {"diagnosis": "...", "instructions": "...", "warnings": "..."}}.
Omit "translated" and "backTranslated" when the target language is English.
Never add medical advice that is not present in the source.`

func (t *OpenAITransformer) Transform(ctx context.Context, content PlanContent, targetLanguage string) (*Result, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"content":        content,
		"targetLanguage": targetLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transform request: %w", err)
	}

	var result *Result
	err = retry.Do(
		func() error {
			resp, err := t.chat.New(ctx, openai.ChatCompletionNewParams{
				Model: t.model,
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage(systemPrompt),
					openai.UserMessage(string(payload)),
				},
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("no choices returned")
			}
			parsed, err := parseResult(resp.Choices[0].Message.Content, targetLanguage)
			if err != nil {
				return err
			}
			result = parsed
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(t.retryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	return result, nil
}

// parseResult decodes the collaborator's reply and enforces the contract:
// simplified content must be present, and non-English targets must include
// the translated tier.
func parseResult(raw, targetLanguage string) (*Result, error) {
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode transform response: %w", err)
	}
	if result.Simplified.Empty() {
		return nil, fmt.Errorf("transform response missing simplified content")
	}
	if targetLanguage != "" && targetLanguage != "en" {
		if result.Translated == nil || result.Translated.Empty() {
			return nil, fmt.Errorf("transform response missing translation for %q", targetLanguage)
		}
	}
	return &result, nil
}
