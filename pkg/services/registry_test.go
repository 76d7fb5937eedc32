package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
)

type chatOnly struct{}

func (chatOnly) CompleteChat(context.Context, []llm.Message, *llm.RequestSettings) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{}, nil
}

func (chatOnly) CompleteChatStream(context.Context, []llm.Message, *llm.RequestSettings) (<-chan llm.StreamChunk, error) {
	return nil, nil
}

func textFactory(client llm.TextCompletion) TextCompletionFactory {
	return func(Host) (llm.TextCompletion, error) { return client, nil }
}

func TestFirstRegistrationIsDefault(t *testing.T) {
	r := NewRegistry(nil)
	c := llm.NewClient(&llm.MockProvider{}, "m")
	require.NoError(t, r.AddTextCompletion("a", textFactory(c)))
	require.NoError(t, r.AddTextCompletion("b", textFactory(c)))
	assert.Equal(t, "a", r.DefaultID(TextCompletion))

	require.NoError(t, r.AddTextCompletion("c", textFactory(c), AsDefault()))
	assert.Equal(t, "c", r.DefaultID(TextCompletion))
	assert.Equal(t, []string{"a", "b", "c"}, r.IDs(TextCompletion))
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry(nil)
	emb := func(Host) (llm.Embedder, error) { return nil, nil }
	require.NoError(t, r.AddEmbedding("e", emb))

	err := r.AddEmbedding("e", emb)
	assert.True(t, kerrors.Is(err, kerrors.CodeDuplicateRegistration))
	require.NoError(t, r.AddEmbedding("e", emb, WithOverwrite(true)))

	c := llm.NewClient(&llm.MockProvider{}, "m")
	require.NoError(t, r.AddTextCompletion("t", textFactory(c)))
	require.NoError(t, r.AddTextCompletion("t", textFactory(c)), "text services overwrite by default")
	err = r.AddTextCompletion("t", textFactory(c), WithOverwrite(false))
	assert.True(t, kerrors.Is(err, kerrors.CodeDuplicateRegistration))
	assert.Equal(t, []string{"t"}, r.IDs(TextCompletion))
}

func TestEmptyID(t *testing.T) {
	r := NewRegistry(nil)
	err := r.AddTextCompletion("", textFactory(nil))
	assert.True(t, kerrors.Is(err, kerrors.CodeInvalidInput))
}

func TestChatClientSubsumesText(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.AddChatCompletionClient("both", llm.NewClient(&llm.MockProvider{}, "m")))
	require.NoError(t, r.AddChatCompletionClient("chat", chatOnly{}))

	assert.Equal(t, []string{"both", "chat"}, r.IDs(ChatCompletion))
	assert.Equal(t, []string{"both"}, r.IDs(TextCompletion))

	f, err := r.TextCompletionFactory("both")
	require.NoError(t, err)
	client, err := f(nil)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestChatClientOptionsApplyToText(t *testing.T) {
	r := NewRegistry(nil)
	c := llm.NewClient(&llm.MockProvider{}, "m")
	require.NoError(t, r.AddTextCompletion("plain", textFactory(c)))
	require.NoError(t, r.AddTextCompletion("both", textFactory(c)))

	err := r.AddChatCompletionClient("both", llm.NewClient(&llm.MockProvider{}, "m"), WithOverwrite(false))
	assert.True(t, kerrors.Is(err, kerrors.CodeDuplicateRegistration))
	assert.Empty(t, r.IDs(ChatCompletion), "rejected text registration must not leave a chat entry")

	require.NoError(t, r.AddChatCompletionClient("fresh", llm.NewClient(&llm.MockProvider{}, "m"), AsDefault()))
	assert.Equal(t, "fresh", r.DefaultID(TextCompletion))
	assert.Equal(t, "fresh", r.DefaultID(ChatCompletion))
}

func TestResolve(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve(TextCompletion, "")
	assert.True(t, kerrors.Is(err, kerrors.CodeUnknownService), "no default registered")

	_, err = r.Resolve(Capability("image"), "x")
	assert.True(t, kerrors.Is(err, kerrors.CodeUnknownService))

	require.NoError(t, r.AddChatCompletion("c", func(Host) (llm.ChatCompletion, error) { return chatOnly{}, nil }))
	_, err = r.ChatCompletionFactory("missing")
	assert.True(t, kerrors.Is(err, kerrors.CodeUnknownService))

	f, err := r.ChatCompletionFactory("")
	require.NoError(t, err)
	client, err := f(nil)
	require.NoError(t, err)
	assert.Equal(t, chatOnly{}, client)
}

func TestRemoveMovesDefault(t *testing.T) {
	r := NewRegistry(nil)
	c := llm.NewClient(&llm.MockProvider{}, "m")
	require.NoError(t, r.AddTextCompletion("a", textFactory(c)))
	require.NoError(t, r.AddTextCompletion("b", textFactory(c)))
	require.NoError(t, r.AddTextCompletion("c", textFactory(c)))

	require.NoError(t, r.Remove(TextCompletion, "a"))
	assert.Equal(t, "b", r.DefaultID(TextCompletion))

	require.NoError(t, r.Remove(TextCompletion, "c"))
	assert.Equal(t, "b", r.DefaultID(TextCompletion))

	require.NoError(t, r.Remove(TextCompletion, "b"))
	assert.Equal(t, "", r.DefaultID(TextCompletion))

	err := r.Remove(TextCompletion, "b")
	assert.True(t, kerrors.Is(err, kerrors.CodeUnknownService))
}

func TestSetDefaultAndClear(t *testing.T) {
	r := NewRegistry(nil)
	c := llm.NewClient(&llm.MockProvider{}, "m")
	require.NoError(t, r.AddTextCompletion("a", textFactory(c)))
	require.NoError(t, r.AddTextCompletion("b", textFactory(c)))

	assert.True(t, kerrors.Is(r.SetDefault(TextCompletion, "zzz"), kerrors.CodeUnknownService))
	require.NoError(t, r.SetDefault(TextCompletion, "b"))
	assert.Equal(t, "b", r.DefaultID(TextCompletion))

	require.NoError(t, r.AddChatCompletionClient("x", chatOnly{}))
	require.NoError(t, r.Clear(TextCompletion))
	assert.Empty(t, r.IDs(TextCompletion))
	assert.Equal(t, []string{"x"}, r.IDs(ChatCompletion))

	r.ClearAll()
	assert.Empty(t, r.IDs(ChatCompletion))
	assert.Equal(t, "", r.DefaultID(ChatCompletion))
}
