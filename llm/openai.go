package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider talks to the OpenAI chat completions API. System
// messages ride inline in the conversation, so conversion is a
// straight role mapping.
type OpenAIProvider struct {
	client   *openai.Client
	config   *Config
	logger   logger.Logger
	recorder *recorder
}

func NewOpenAIProvider(cfg *Config, log logger.Logger) (*OpenAIProvider, error) {
	resolved := *cfg
	if resolved.Model == "" {
		resolved.Model = defaultOpenAIModel
	}
	resolved.APIKey = envOr(resolved.APIKey, "OPENAI_API_KEY")
	if resolved.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	resolved.BatchID = EnsureBatchID(resolved.BatchID)

	clientConfig := openai.DefaultConfig(resolved.APIKey)
	if resolved.BaseURL != "" {
		clientConfig.BaseURL = resolved.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	return &OpenAIProvider{
		client:   client,
		config:   &resolved,
		logger:   log,
		recorder: newRecorder(&resolved, log),
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (p *OpenAIProvider) ConvertToMessages(messages []prompt.Message) (interface{}, error) {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case prompt.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case prompt.RoleUser:
			role = openai.ChatMessageRoleUser
		case prompt.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			return nil, &ConfigurationError{
				Provider: p.Name(),
				Reason:   fmt.Sprintf("unsupported role %q", msg.Role),
			}
		}
		converted = append(converted, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	request := openai.ChatCompletionRequest{
		Model:    p.config.Model,
		Messages: converted,
	}
	if p.config.MaxTokens > 0 {
		request.MaxTokens = p.config.MaxTokens
	}
	if p.config.Temperature > 0 {
		request.Temperature = float32(p.config.Temperature)
	}
	return request, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, request interface{}) (interface{}, error) {
	req, ok := request.(openai.ChatCompletionRequest)
	if !ok {
		return nil, &ConfigurationError{
			Provider: p.Name(),
			Reason:   fmt.Sprintf("unexpected request type %T", request),
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		apiErr := &openai.APIError{}
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 401 {
			return nil, &ConfigurationError{Provider: p.Name(), Reason: "unauthorized: invalid OpenAI API key"}
		}
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}
	return resp, nil
}

func (p *OpenAIProvider) ParseResponse(response interface{}) (string, error) {
	resp, ok := response.(openai.ChatCompletionResponse)
	if !ok {
		return "", &ParseError{
			Provider: p.Name(),
			Reason:   fmt.Sprintf("unexpected response type %T", response),
		}
	}
	if len(resp.Choices) == 0 {
		return "", &ParseError{Provider: p.Name(), Reason: "no choices returned"}
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", &ParseError{Provider: p.Name(), Reason: "response contains no text content"}
	}
	return content, nil
}

func (p *OpenAIProvider) ProcessPrompt(ctx context.Context, messages []prompt.Message) (string, error) {
	request, err := p.ConvertToMessages(messages)
	if err != nil {
		return "", err
	}
	p.logger.WithField("model", p.config.Model).WithField("messages", len(messages)).Debug("dispatching prompt to openai")

	response, err := generateWithRetry(ctx, p, request, p.config.MaxRetries, p.logger)
	if err != nil {
		return "", err
	}

	text, err := p.ParseResponse(response)
	if err != nil {
		return "", err
	}

	if resp, ok := response.(openai.ChatCompletionResponse); ok {
		p.recorder.record(messages, text, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return text, nil
}
