package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// TokenCounter counts tokens with the BPE encoding of a model.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewTokenCounter creates a counter for model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages estimates the prompt size of a chat request, including the
// per-message framing overhead used by OpenAI chat models.
func (tc *TokenCounter) CountMessages(messages []Message) int {
	total := 3
	for _, m := range messages {
		total += 4 + tc.Count(string(m.Role)) + tc.Count(m.Content)
	}
	return total
}

// EstimateTokens approximates a token count without an encoding, at roughly
// four characters per token.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// CountFunc returns a counting function for model, degrading to
// EstimateTokens when no encoding can be loaded.
func CountFunc(model string) func(string) int {
	tc, err := NewTokenCounter(model)
	if err != nil {
		return EstimateTokens
	}
	return tc.Count
}
