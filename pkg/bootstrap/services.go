package bootstrap

import (
	"context"
	"fmt"
	"strings"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/config"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/llm/anthropic"
	"github.com/jllopis/semkernel/pkg/llm/gemini"
	"github.com/jllopis/semkernel/pkg/llm/ollama"
	"github.com/jllopis/semkernel/pkg/llm/openai"
	"github.com/jllopis/semkernel/pkg/services"
)

// DashScopeBaseURL is the OpenAI compatible endpoint used for qwen models.
const DashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// Service capabilities accepted in the configuration.
const (
	CapabilityChat      = "chat"
	CapabilityText      = "text"
	CapabilityEmbedding = "embedding"
)

// registerServices adds every configured service to k.
func registerServices(k *kernel.Kernel, list []config.ServiceConfig) error {
	for _, sc := range list {
		if err := registerService(k, sc); err != nil {
			return err
		}
	}
	return nil
}

func registerService(k *kernel.Kernel, sc config.ServiceConfig) error {
	if strings.TrimSpace(sc.ID) == "" {
		return kerrors.New(kerrors.CodeConfiguration, "service id cannot be empty", nil)
	}
	var opts []services.AddOption
	if sc.Default {
		opts = append(opts, services.AsDefault())
	}

	switch strings.ToLower(sc.Capability) {
	case CapabilityChat, "":
		provider, err := chatProvider(sc)
		if err != nil {
			return err
		}
		return k.AddChatService(sc.ID, llm.NewClient(provider, sc.Model), opts...)
	case CapabilityText:
		provider, err := chatProvider(sc)
		if err != nil {
			return err
		}
		return k.AddTextCompletionService(sc.ID, func(services.Host) (llm.TextCompletion, error) {
			return llm.NewClient(provider, sc.Model), nil
		}, opts...)
	case CapabilityEmbedding:
		return k.AddTextEmbeddingGenerationService(sc.ID, func(services.Host) (llm.Embedder, error) {
			return embedder(sc)
		}, opts...)
	default:
		return kerrors.New(kerrors.CodeConfiguration,
			fmt.Sprintf("service %s: unknown capability %q", sc.ID, sc.Capability), nil)
	}
}

// chatProvider builds the provider behind chat and text services. Text
// completion sends the prompt as a single user message.
func chatProvider(sc config.ServiceConfig) (llm.Provider, error) {
	switch strings.ToLower(sc.Provider) {
	case "openai", "qwen":
		opts := []openai.Option{openai.WithModel(sc.Model)}
		if baseURL := providerBaseURL(sc); baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		if sc.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(sc.APIKey))
		}
		return openai.New(opts...), nil
	case "gemini":
		return geminiProvider(sc, gemini.WithModel(sc.Model))
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(sc.Model)}
		if sc.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(sc.BaseURL))
		}
		if sc.APIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(sc.APIKey))
		}
		return anthropic.New(opts...), nil
	case "ollama":
		return ollama.New(sc.BaseURL, ollama.WithModel(sc.Model)), nil
	case "mock":
		return &llm.MockProvider{Response: sc.Response}, nil
	default:
		return nil, kerrors.New(kerrors.CodeConfiguration,
			fmt.Sprintf("service %s: unknown provider %q", sc.ID, sc.Provider), nil)
	}
}

func embedder(sc config.ServiceConfig) (llm.Embedder, error) {
	switch strings.ToLower(sc.Provider) {
	case "openai", "qwen":
		opts := []openai.Option{openai.WithEmbeddingModel(sc.Model)}
		if baseURL := providerBaseURL(sc); baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		if sc.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(sc.APIKey))
		}
		return openai.New(opts...), nil
	case "gemini":
		return geminiProvider(sc, gemini.WithEmbeddingModel(sc.Model))
	case "ollama":
		var opts []ollama.Option
		if sc.Model != "" {
			opts = append(opts, ollama.WithEmbeddingModel(sc.Model))
		}
		return ollama.New(sc.BaseURL, opts...), nil
	default:
		return nil, kerrors.New(kerrors.CodeConfiguration,
			fmt.Sprintf("service %s: provider %q has no embedding support", sc.ID, sc.Provider), nil)
	}
}

func providerBaseURL(sc config.ServiceConfig) string {
	if sc.BaseURL == "" && strings.EqualFold(sc.Provider, "qwen") {
		return DashScopeBaseURL
	}
	return sc.BaseURL
}

func geminiProvider(sc config.ServiceConfig, opts ...gemini.Option) (*gemini.Provider, error) {
	if sc.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(sc.BaseURL))
	}
	if sc.APIKey != "" {
		opts = append(opts, gemini.WithAPIKey(sc.APIKey))
	}
	p, err := gemini.New(context.Background(), opts...)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, fmt.Sprintf("service %s", sc.ID), err)
	}
	return p, nil
}
