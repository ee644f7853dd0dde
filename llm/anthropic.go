package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-20240620"
	defaultMaxTokens      = 4096
)

// AnthropicProvider talks to the Anthropic Messages API. Anthropic takes
// the system instruction out-of-band, so conversion enforces the
// single-leading-system-message shape.
type AnthropicProvider struct {
	client   *anthropic.Client
	config   *Config
	logger   logger.Logger
	recorder *recorder
}

func NewAnthropicProvider(cfg *Config, log logger.Logger) (*AnthropicProvider, error) {
	resolved := *cfg
	if resolved.Model == "" {
		resolved.Model = defaultAnthropicModel
	}
	if resolved.MaxTokens == 0 {
		resolved.MaxTokens = defaultMaxTokens
	}
	resolved.APIKey = envOr(resolved.APIKey, "ANTHROPIC_API_KEY")
	if resolved.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	resolved.BatchID = EnsureBatchID(resolved.BatchID)

	// Retry policy is owned by generateWithRetry, not the SDK.
	opts := []option.RequestOption{
		option.WithAPIKey(resolved.APIKey),
		option.WithMaxRetries(0),
	}
	if resolved.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(resolved.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client:   &client,
		config:   &resolved,
		logger:   log,
		recorder: newRecorder(&resolved, log),
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return ProviderAnthropic
}

// ConvertToMessages builds the Messages API request. Exactly one system
// message is supported and it must come first; anything else is a
// ConfigurationError.
func (p *AnthropicProvider) ConvertToMessages(messages []prompt.Message) (interface{}, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(p.config.MaxTokens),
	}
	if p.config.Temperature > 0 {
		params.Temperature = anthropic.Float(p.config.Temperature)
	}

	converted := make([]anthropic.MessageParam, 0, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case prompt.RoleSystem:
			if i != 0 {
				return nil, &ConfigurationError{
					Provider: p.Name(),
					Reason:   "only a single leading system message is supported",
				}
			}
			params.System = []anthropic.TextBlockParam{{Text: msg.Content}}
		case prompt.RoleUser:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case prompt.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return nil, &ConfigurationError{
				Provider: p.Name(),
				Reason:   fmt.Sprintf("unsupported role %q", msg.Role),
			}
		}
	}
	params.Messages = converted
	return params, nil
}

func (p *AnthropicProvider) Generate(ctx context.Context, request interface{}) (interface{}, error) {
	params, ok := request.(anthropic.MessageNewParams)
	if !ok {
		return nil, &ConfigurationError{
			Provider: p.Name(),
			Reason:   fmt.Sprintf("unexpected request type %T", request),
		}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}
	return message, nil
}

func (p *AnthropicProvider) ParseResponse(response interface{}) (string, error) {
	message, ok := response.(*anthropic.Message)
	if !ok {
		return "", &ParseError{
			Provider: p.Name(),
			Reason:   fmt.Sprintf("unexpected response type %T", response),
		}
	}

	var text string
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	if text == "" {
		return "", &ParseError{Provider: p.Name(), Reason: "response contains no text content"}
	}
	return text, nil
}

func (p *AnthropicProvider) ProcessPrompt(ctx context.Context, messages []prompt.Message) (string, error) {
	request, err := p.ConvertToMessages(messages)
	if err != nil {
		return "", err
	}
	p.logger.WithField("model", p.config.Model).WithField("messages", len(messages)).Debug("dispatching prompt to anthropic")

	response, err := generateWithRetry(ctx, p, request, p.config.MaxRetries, p.logger)
	if err != nil {
		return "", err
	}

	text, err := p.ParseResponse(response)
	if err != nil {
		return "", err
	}

	if message, ok := response.(*anthropic.Message); ok {
		p.logger.WithField("stop_reason", string(message.StopReason)).Debug("anthropic response received")
		p.recorder.record(messages, text, int(message.Usage.InputTokens), int(message.Usage.OutputTokens))
	}
	return text, nil
}
