package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/deepnoodle-ai/conductor/llm"
)

// CreateCache uploads the system text plus history prefix as server-side
// cached content and returns its handle name and expiry. Later requests
// reference the name instead of resending the prefix.
func (p *Provider) CreateCache(ctx context.Context, system string, messages []*llm.Message, ttl time.Duration) (string, time.Time, error) {
	client, err := p.initClient(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	contents, err := contentsFromMessages(messages)
	if err != nil {
		return "", time.Time{}, err
	}
	config := &genai.CreateCachedContentConfig{
		Contents: contents,
		TTL:      ttl,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	cache, err := client.Caches.Create(ctx, p.model, config)
	if err != nil {
		return "", time.Time{}, classifyError(err)
	}
	p.logger.Debug("cached content created", "name", cache.Name, "expire_time", cache.ExpireTime)
	return cache.Name, cache.ExpireTime, nil
}

// DeleteCache removes a cached content object. Deleting a cache that has
// already expired server-side is not an error.
func (p *Provider) DeleteCache(ctx context.Context, name string) error {
	client, err := p.initClient(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Caches.Delete(ctx, name, nil); err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil
		}
		return classifyError(err)
	}
	return nil
}

// CountTokens asks the API for the exact token count of the given prompt
// content. The system text is counted as a leading user message.
func (p *Provider) CountTokens(ctx context.Context, system string, messages []*llm.Message) (int, error) {
	client, err := p.initClient(ctx)
	if err != nil {
		return 0, err
	}
	all := messages
	if system != "" {
		all = append([]*llm.Message{llm.NewUserMessage(system)}, messages...)
	}
	contents, err := contentsFromMessages(all)
	if err != nil {
		return 0, err
	}
	resp, err := client.Models.CountTokens(ctx, p.model, contents, nil)
	if err != nil {
		return 0, classifyError(err)
	}
	if resp == nil {
		return 0, fmt.Errorf("empty count tokens response")
	}
	return int(resp.TotalTokens), nil
}
