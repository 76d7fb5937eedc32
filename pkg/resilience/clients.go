package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/semkernel/pkg/llm"
)

// Policy is the set of protections applied around an AI client.
type Policy struct {
	Retry   RetryConfig
	Timeout time.Duration
	Breaker *CircuitBreaker
	Logger  *slog.Logger
}

// DefaultPolicy retries with DefaultRetryConfig and no timeout or breaker.
func DefaultPolicy() Policy {
	return Policy{Retry: DefaultRetryConfig()}
}

func run[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0
	return Retry(ctx, p.Retry, func() (T, error) {
		attempt++
		if attempt > 1 && p.Logger != nil {
			p.Logger.Debug("resilience.retry", slog.String("operation", op), slog.Int("attempt", attempt))
		}
		var out T
		call := func() error {
			v, err := WithTimeout(ctx, p.Timeout, fn)
			out = v
			return err
		}
		var err error
		if p.Breaker != nil {
			err = p.Breaker.Call(ctx, call)
		} else {
			err = call()
		}
		return out, err
	})
}

// TextCompletion applies a Policy to a text completion client. Streams are
// protected until the stream is open; chunks are passed through untouched.
type TextCompletion struct {
	next   llm.TextCompletion
	policy Policy
}

// WrapTextCompletion returns next guarded by policy.
func WrapTextCompletion(next llm.TextCompletion, policy Policy) *TextCompletion {
	return &TextCompletion{next: next, policy: policy}
}

// Unwrap returns the wrapped client.
func (c *TextCompletion) Unwrap() llm.TextCompletion { return c.next }

func (c *TextCompletion) Complete(ctx context.Context, prompt string, settings *llm.RequestSettings) (string, error) {
	return run(ctx, c.policy, "complete", func(ctx context.Context) (string, error) {
		return c.next.Complete(ctx, prompt, settings)
	})
}

func (c *TextCompletion) CompleteStream(ctx context.Context, prompt string, settings *llm.RequestSettings) (<-chan llm.StreamChunk, error) {
	p := c.policy
	p.Timeout = 0
	return run(ctx, p, "complete_stream", func(ctx context.Context) (<-chan llm.StreamChunk, error) {
		return c.next.CompleteStream(ctx, prompt, settings)
	})
}

// ChatCompletion applies a Policy to a chat completion client.
type ChatCompletion struct {
	next   llm.ChatCompletion
	policy Policy
}

// WrapChatCompletion returns next guarded by policy.
func WrapChatCompletion(next llm.ChatCompletion, policy Policy) *ChatCompletion {
	return &ChatCompletion{next: next, policy: policy}
}

// Unwrap returns the wrapped client.
func (c *ChatCompletion) Unwrap() llm.ChatCompletion { return c.next }

func (c *ChatCompletion) CompleteChat(ctx context.Context, messages []llm.Message, settings *llm.RequestSettings) (*llm.ChatResponse, error) {
	return run(ctx, c.policy, "complete_chat", func(ctx context.Context) (*llm.ChatResponse, error) {
		return c.next.CompleteChat(ctx, messages, settings)
	})
}

func (c *ChatCompletion) CompleteChatStream(ctx context.Context, messages []llm.Message, settings *llm.RequestSettings) (<-chan llm.StreamChunk, error) {
	p := c.policy
	p.Timeout = 0
	return run(ctx, p, "complete_chat_stream", func(ctx context.Context) (<-chan llm.StreamChunk, error) {
		return c.next.CompleteChatStream(ctx, messages, settings)
	})
}

// Embedder applies a Policy to an embedding client.
type Embedder struct {
	next   llm.Embedder
	policy Policy
}

// WrapEmbedder returns next guarded by policy.
func WrapEmbedder(next llm.Embedder, policy Policy) *Embedder {
	return &Embedder{next: next, policy: policy}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return run(ctx, e.policy, "embed", func(ctx context.Context) ([]float32, error) {
		return e.next.Embed(ctx, text)
	})
}

var (
	_ llm.TextCompletion = (*TextCompletion)(nil)
	_ llm.ChatCompletion = (*ChatCompletion)(nil)
	_ llm.Embedder       = (*Embedder)(nil)
)
