// Package tokens provides local token estimation using tiktoken. Estimates
// guard against oversized prompts before a request is sent; exact counts
// come back from the transport's usage metadata after the fact.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is cl100k_base. It is not the Gemini tokenizer, but it is
// close enough for guardrail purposes when combined with SafetyMargin.
const DefaultEncoding = "cl100k_base"

// SafetyMargin accounts for tokenizer variance across model families.
const SafetyMargin = 1.2

// Estimator provides token estimation using tiktoken. A zero value falls
// back to character based estimation.
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the global token estimator (singleton). When the encoding
// cannot be loaded the estimator degrades to chars/4.
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		est, err := New()
		if err != nil {
			globalEstimator = &Estimator{}
			return
		}
		globalEstimator = est
	})
	return globalEstimator
}

// New creates a new token estimator.
func New() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Estimator{encoding: enc}, nil
}

// Count returns the token count for a string. Falls back to chars/4 if
// tiktoken is unavailable.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	toks := e.encoding.Encode(text, nil, nil)
	return len(toks)
}

// CountWithMargin returns the count inflated by SafetyMargin. Used when the
// estimate gates a hard limit.
func (e *Estimator) CountWithMargin(text string) int {
	return int(float64(e.Count(text)) * SafetyMargin)
}

// Estimate is a convenience function using the global estimator.
func Estimate(text string) int {
	return Get().Count(text)
}
