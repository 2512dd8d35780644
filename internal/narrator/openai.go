package narrator

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var errNoChoices = errors.New("narrator: model returned no choices")

// OpenAI completes prompts through the chat completions API. Any
// OpenAI-compatible endpoint works when BaseURL is set.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
