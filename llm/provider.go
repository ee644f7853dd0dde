package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
)

// Provider is the capability contract every model backend implements.
// ProcessPrompt is the only method the rest of the system calls directly;
// the other methods expose the conversion, transport, and parsing phases
// individually. Request and response payloads between phases belong to the
// concrete backend.
type Provider interface {
	Name() string
	// ConvertToMessages maps the uniform message list into the backend's
	// request shape.
	ConvertToMessages(messages []prompt.Message) (interface{}, error)
	// Generate performs the backend call with a request built by
	// ConvertToMessages. Failures surface as *TransportError.
	Generate(ctx context.Context, request interface{}) (interface{}, error)
	// ParseResponse extracts plain text from a backend response.
	ParseResponse(response interface{}) (string, error)
	// ProcessPrompt runs ConvertToMessages, Generate, and ParseResponse
	// in order and returns the resulting text.
	ProcessPrompt(ctx context.Context, messages []prompt.Message) (string, error)
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config carries provider construction parameters. The API key defaults
// from the environment; Debug controls verbose tracing only and has no
// semantic effect.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	MaxRetries  int
	Debug       bool
	BatchID     string
	TellmURL    string
}

// New builds a provider from cfg. The provider name defaults to anthropic.
func New(cfg *Config, log logger.Logger) (Provider, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}
	switch cfg.Provider {
	case ProviderAnthropic, "claude", "":
		return NewAnthropicProvider(cfg, log)
	case ProviderOpenAI, "gpt":
		return NewOpenAIProvider(cfg, log)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Registry holds named providers for callers that construct and share
// their own backends. Re-registering a name overwrites the previous
// binding.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewProviderRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const retryBaseBackoff = 500 * time.Millisecond

// generateWithRetry calls p.Generate, retrying transport failures up to
// retries times with doubling backoff. All other error kinds are
// deterministic and surface immediately.
func generateWithRetry(ctx context.Context, p Provider, request interface{}, retries int, log logger.Logger) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := retryBaseBackoff << (attempt - 1)
			log.WithField("attempt", attempt).WithField("backoff", backoff.String()).Warn("retrying after transport failure")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		response, err := p.Generate(ctx, request)
		if err == nil {
			return response, nil
		}
		var transport *TransportError
		if !errors.As(err, &transport) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func envOr(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}
