package kernel

import (
	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/memory"
	"github.com/jllopis/semkernel/pkg/resilience"
	"github.com/jllopis/semkernel/pkg/services"
)

// AddTextCompletionService registers a text completion factory.
func (k *Kernel) AddTextCompletionService(id string, factory services.TextCompletionFactory, opts ...services.AddOption) error {
	return k.services.AddTextCompletion(id, factory, opts...)
}

// AddChatService registers a chat client. A client that also completes
// text is registered as a text completion service too.
func (k *Kernel) AddChatService(id string, client llm.ChatCompletion, opts ...services.AddOption) error {
	return k.services.AddChatCompletionClient(id, client, opts...)
}

// AddChatServiceFactory registers a chat completion factory.
func (k *Kernel) AddChatServiceFactory(id string, factory services.ChatCompletionFactory, opts ...services.AddOption) error {
	return k.services.AddChatCompletion(id, factory, opts...)
}

// AddTextEmbeddingGenerationService registers an embedding factory.
func (k *Kernel) AddTextEmbeddingGenerationService(id string, factory services.EmbeddingFactory, opts ...services.AddOption) error {
	return k.services.AddEmbedding(id, factory, opts...)
}

// SetDefaultTextCompletionService makes id the default text service.
func (k *Kernel) SetDefaultTextCompletionService(id string) error {
	return k.services.SetDefault(services.TextCompletion, id)
}

// SetDefaultChatService makes id the default chat service.
func (k *Kernel) SetDefaultChatService(id string) error {
	return k.services.SetDefault(services.ChatCompletion, id)
}

// SetDefaultTextEmbeddingGenerationService makes id the default embedding
// service.
func (k *Kernel) SetDefaultTextEmbeddingGenerationService(id string) error {
	return k.services.SetDefault(services.Embedding, id)
}

// RemoveTextCompletionService unregisters a text service.
func (k *Kernel) RemoveTextCompletionService(id string) error {
	return k.services.Remove(services.TextCompletion, id)
}

// RemoveChatService unregisters a chat service.
func (k *Kernel) RemoveChatService(id string) error {
	return k.services.Remove(services.ChatCompletion, id)
}

// RemoveTextEmbeddingGenerationService unregisters an embedding service.
func (k *Kernel) RemoveTextEmbeddingGenerationService(id string) error {
	return k.services.Remove(services.Embedding, id)
}

// ClearAllServices removes every AI service.
func (k *Kernel) ClearAllServices() { k.services.ClearAll() }

// GetAIService returns the factory registered for id, or for the default
// of capability when id is empty. The factory is not invoked.
func (k *Kernel) GetAIService(capability services.Capability, id string) (any, error) {
	return k.services.Resolve(capability, id)
}

// UseMemory backs the kernel memory with store. A nil embedder is built
// from the default embedding service.
func (k *Kernel) UseMemory(store memory.VectorStore, embedder llm.Embedder) error {
	if store == nil {
		return kerrors.New(kerrors.CodeConfiguration, "the storage instance provided cannot be nil", nil)
	}
	if embedder == nil {
		id := k.services.DefaultID(services.Embedding)
		if id == "" {
			return kerrors.New(kerrors.CodeConfiguration, "the embedding service id cannot be empty", nil)
		}
		factory, err := k.services.EmbeddingFactory(id)
		if err != nil {
			return err
		}
		if embedder, err = factory(k); err != nil {
			return kerrors.New(kerrors.CodeConfiguration, "AI configuration is missing for: "+id, err)
		}
	}
	if k.retry != nil {
		embedder = resilience.WrapEmbedder(embedder, k.policy())
	}
	k.RegisterMemory(memory.NewVectorMemory(store, embedder))
	return nil
}
