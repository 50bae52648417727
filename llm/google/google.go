// Package google implements the llm interfaces on the Gemini API via the
// google.golang.org/genai SDK, including server-side cached content and
// token counting.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/deepnoodle-ai/conductor"
	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/log"
	"github.com/deepnoodle-ai/conductor/retry"
)

const ProviderName = "google"

var (
	DefaultModel         = "gemini-2.5-pro"
	DefaultMaxRetries    = 3
	DefaultRetryBaseWait = 1 * time.Second
)

var _ llm.Streamer = &Provider{}

// Provider talks to the Gemini API. The client is created lazily on
// first use so construction never needs a context.
type Provider struct {
	client        *genai.Client
	apiKey        string
	model         string
	maxRetries    int
	retryBaseWait time.Duration
	logger        log.Logger
	mutex         sync.Mutex
}

// Option configures a Provider.
type Option func(*Provider)

// WithAPIKey overrides the API key from the environment.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) { p.apiKey = apiKey }
}

// WithModel sets the default model name.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithMaxRetries sets the retry budget for transient API failures.
func WithMaxRetries(n int) Option {
	return func(p *Provider) { p.maxRetries = n }
}

// WithRetryBaseWait sets the base wait of the retry backoff.
func WithRetryBaseWait(d time.Duration) Option {
	return func(p *Provider) { p.retryBaseWait = d }
}

// WithLogger sets the provider logger.
func WithLogger(logger log.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// New creates a Provider. The API key is read from GEMINI_API_KEY or
// GOOGLE_API_KEY when not set explicitly.
func New(opts ...Option) *Provider {
	var apiKey string
	if value := os.Getenv("GEMINI_API_KEY"); value != "" {
		apiKey = value
	} else if value := os.Getenv("GOOGLE_API_KEY"); value != "" {
		apiKey = value
	}
	p := &Provider{
		apiKey:        apiKey,
		model:         DefaultModel,
		maxRetries:    DefaultMaxRetries,
		retryBaseWait: DefaultRetryBaseWait,
		logger:        log.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) initClient(ctx context.Context) (*genai.Client, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create google genai client: %w", err)
	}
	p.client = client
	return p.client, nil
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) SupportsStreaming() bool {
	return true
}

func (p *Provider) resolveModel(req *llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

// Generate produces a complete response, retrying transient failures.
func (p *Provider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	client, err := p.initClient(ctx)
	if err != nil {
		return nil, err
	}
	model := p.resolveModel(req)
	contents, err := contentsFromMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	genConfig := buildGenerateConfig(req)

	var result *llm.Response
	err = retry.Do(ctx, func() error {
		resp, err := client.Models.GenerateContent(ctx, model, contents, genConfig)
		if err != nil {
			return classifyError(err)
		}
		var convErr error
		result, convErr = convertResponse(resp)
		return convErr
	}, retry.WithMaxRetries(p.maxRetries), retry.WithBaseWait(p.retryBaseWait))
	if err != nil {
		return nil, err
	}
	p.logger.Debug("generation complete", "model", model,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"cached_tokens", result.Usage.CachedTokens)
	return result, nil
}

// Stream produces an incremental response. Events carry text deltas and
// tool calls; the terminal event aggregates the final response.
func (p *Provider) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	client, err := p.initClient(ctx)
	if err != nil {
		return nil, err
	}
	model := p.resolveModel(req)
	contents, err := contentsFromMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	genConfig := buildGenerateConfig(req)

	seq := client.Models.GenerateContentStream(ctx, model, contents, genConfig)
	return newStreamIterator(seq), nil
}

// classifyError wraps API failures so the retry layer and the CLI exit
// codes can tell transient from permanent.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 408, 429, 500, 502, 503, 504:
			return retry.NewRecoverableError(conductor.NewTransportError(err, true))
		}
		return conductor.NewTransportError(err, false)
	}
	// Network-level failures without an API status are worth retrying.
	return retry.NewRecoverableError(conductor.NewTransportError(err, true))
}
