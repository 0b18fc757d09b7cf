package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fmueller/chunkscribe/internal/audio"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const DefaultMaxTokens = 4096

type Endpoint struct {
	// URL is the resource base URL. With APIVersion set it is treated as an
	// Azure OpenAI endpoint and requests are routed per deployment.
	URL        string
	APIVersion string
	APIKey     string
	Deployment string
	HTTPClient *http.Client
}

func (e Endpoint) validate() error {
	if strings.TrimSpace(e.URL) == "" {
		return errors.New("endpoint URL is required")
	}
	if strings.TrimSpace(e.APIKey) == "" {
		return errors.New("endpoint credential is required")
	}
	if strings.TrimSpace(e.Deployment) == "" {
		return errors.New("deployment name is required")
	}
	return nil
}

func newOpenAIClient(e Endpoint) openai.Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if e.APIVersion != "" {
		opts = append(opts, azure.WithEndpoint(e.URL, e.APIVersion), azure.WithAPIKey(e.APIKey))
	} else {
		opts = append(opts, option.WithBaseURL(e.URL), option.WithAPIKey(e.APIKey))
	}

	httpClient := e.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	opts = append(opts, option.WithHTTPClient(httpClient))

	return openai.NewClient(opts...)
}

// SegmentTranscriber turns one encoded segment into a Result. Implementations
// must not share mutable state between calls.
type SegmentTranscriber interface {
	Transcribe(ctx context.Context, payload audio.Payload, systemPrompt, userPrompt string) Result
}

// ChatClient transcribes segments through a chat completion deployment that
// accepts audio input.
type ChatClient struct {
	client     openai.Client
	deployment string
	maxTokens  int64
	logger     *zap.Logger
}

func NewChatClient(e Endpoint, maxTokens int64, logger *zap.Logger) (*ChatClient, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatClient{
		client:     newOpenAIClient(e),
		deployment: e.Deployment,
		maxTokens:  maxTokens,
		logger:     logger,
	}, nil
}

func (c *ChatClient) Transcribe(ctx context.Context, payload audio.Payload, systemPrompt, userPrompt string) Result {
	completion, err := c.client.Chat.Completions.New(ctx, chatParams(c.deployment, c.maxTokens, payload, systemPrompt, userPrompt))
	if err != nil {
		return c.networkFailure(err)
	}
	return Interpret(completion)
}

func chatParams(deployment string, maxTokens int64, payload audio.Payload, systemPrompt, userPrompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(deployment),
		Modalities:  []string{"text"},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(userPrompt),
				openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
					Data:   payload.Data,
					Format: payload.Format,
				}),
			}),
		},
	}
}

// Interpret decodes a completion into a Result. A normal stop with text is
// Completed, any other stop reason is Incomplete, and everything else is
// Failed with the raw response as detail.
func Interpret(completion *openai.ChatCompletion) Result {
	if completion == nil {
		return Failed("empty response")
	}
	if len(completion.Choices) == 0 {
		return Failed(rawDetail(completion))
	}

	choice := completion.Choices[0]
	reason := string(choice.FinishReason)
	switch {
	case reason == "stop" && strings.TrimSpace(choice.Message.Content) != "":
		return Completed(choice.Message.Content)
	case reason == "stop", reason == "":
		return Failed(rawDetail(completion))
	default:
		return Incomplete(reason)
	}
}

func rawDetail(completion *openai.ChatCompletion) string {
	if raw := strings.TrimSpace(completion.RawJSON()); raw != "" {
		return raw
	}
	return fmt.Sprintf("%+v", *completion)
}

func (c *ChatClient) networkFailure(err error) Result {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := singleLine(apiErr.RawJSON())
		c.logger.Warn("completion request failed", zap.Int("status", apiErr.StatusCode), zap.String("body", body))
		return Failed(fmt.Sprintf("%v: status %d: %s", ErrNetwork, apiErr.StatusCode, body))
	}

	c.logger.Warn("completion request failed", zap.Error(err))
	return Failed(fmt.Sprintf("%v: %v", ErrNetwork, err))
}
