// Package services maps service ids to lazily built AI clients, grouped by
// capability.
package services

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
)

// Capability names a kind of AI client.
type Capability string

const (
	TextCompletion Capability = "text_completion"
	ChatCompletion Capability = "chat_completion"
	Embedding      Capability = "embedding"
)

// Host is what factories receive when building a client; the kernel
// implements it.
type Host interface {
	Logger() *slog.Logger
}

// Factories build a client bound to the host.
type (
	TextCompletionFactory func(Host) (llm.TextCompletion, error)
	ChatCompletionFactory func(Host) (llm.ChatCompletion, error)
	EmbeddingFactory      func(Host) (llm.Embedder, error)
)

// AddOption configures a registration.
type AddOption func(*addOptions)

type addOptions struct {
	overwrite *bool
	asDefault bool
}

// WithOverwrite sets whether an existing id may be replaced.
func WithOverwrite(overwrite bool) AddOption {
	return func(o *addOptions) { o.overwrite = &overwrite }
}

// AsDefault makes the registered id the default of its capability.
func AsDefault() AddOption {
	return func(o *addOptions) { o.asDefault = true }
}

type category struct {
	ids       []string
	factories map[string]any
	def       string
}

// Registry holds the AI service factories of a kernel. The first id
// registered for a capability becomes its default.
type Registry struct {
	mu     sync.RWMutex
	cats   map[Capability]*category
	logger *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{cats: make(map[Capability]*category), logger: logger}
	for _, c := range []Capability{TextCompletion, ChatCompletion, Embedding} {
		r.cats[c] = &category{factories: make(map[string]any)}
	}
	return r
}

func (r *Registry) category(c Capability) (*category, error) {
	cat, ok := r.cats[c]
	if !ok {
		return nil, kerrors.New(kerrors.CodeUnknownService, fmt.Sprintf("unknown AI service type: %s", c), nil)
	}
	return cat, nil
}

func collectOptions(opts []AddOption) addOptions {
	o := addOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o addOptions) overwriteOr(def bool) bool {
	if o.overwrite != nil {
		return *o.overwrite
	}
	return def
}

func duplicateService(c Capability, id string) error {
	return kerrors.New(kerrors.CodeDuplicateRegistration,
		fmt.Sprintf("%s service with service_id %q already exists", c, id), nil)
}

func (r *Registry) add(c Capability, id string, factory any, defaultOverwrite bool, opts []AddOption) error {
	if id == "" {
		return kerrors.New(kerrors.CodeInvalidInput, "service_id must be a non-empty string", nil)
	}
	o := collectOptions(opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	cat, err := r.category(c)
	if err != nil {
		return err
	}
	if _, exists := cat.factories[id]; exists {
		if !o.overwriteOr(defaultOverwrite) {
			return duplicateService(c, id)
		}
	} else {
		cat.ids = append(cat.ids, id)
	}
	cat.factories[id] = factory
	if cat.def == "" || o.asDefault {
		cat.def = id
	}
	r.logger.Debug("services.registered", slog.String("capability", string(c)), slog.String("service_id", id))
	return nil
}

// AddTextCompletion registers a text completion factory. Existing ids are
// replaced unless WithOverwrite(false) is given.
func (r *Registry) AddTextCompletion(id string, factory TextCompletionFactory, opts ...AddOption) error {
	if factory == nil {
		return kerrors.New(kerrors.CodeConfiguration, "text completion factory cannot be nil", nil)
	}
	return r.add(TextCompletion, id, factory, true, opts)
}

// AddChatCompletion registers a chat completion factory. Existing ids are
// replaced unless WithOverwrite(false) is given.
func (r *Registry) AddChatCompletion(id string, factory ChatCompletionFactory, opts ...AddOption) error {
	if factory == nil {
		return kerrors.New(kerrors.CodeConfiguration, "chat completion factory cannot be nil", nil)
	}
	return r.add(ChatCompletion, id, factory, true, opts)
}

// AddChatCompletionClient registers an already built chat client. A client
// that also completes text is registered for text completion under the
// same id with the same options; when either registration would be
// rejected, neither is made.
func (r *Registry) AddChatCompletionClient(id string, client llm.ChatCompletion, opts ...AddOption) error {
	if client == nil {
		return kerrors.New(kerrors.CodeConfiguration, "chat completion client cannot be nil", nil)
	}
	text, isText := client.(llm.TextCompletion)
	if isText && !collectOptions(opts).overwriteOr(true) && r.has(TextCompletion, id) {
		return duplicateService(TextCompletion, id)
	}
	if err := r.AddChatCompletion(id, func(Host) (llm.ChatCompletion, error) { return client, nil }, opts...); err != nil {
		return err
	}
	if isText {
		return r.AddTextCompletion(id, func(Host) (llm.TextCompletion, error) { return text, nil }, opts...)
	}
	return nil
}

func (r *Registry) has(c Capability, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cats[c].factories[id]
	return ok
}

// AddEmbedding registers an embedding factory. Existing ids are rejected
// unless WithOverwrite(true) is given.
func (r *Registry) AddEmbedding(id string, factory EmbeddingFactory, opts ...AddOption) error {
	if factory == nil {
		return kerrors.New(kerrors.CodeConfiguration, "embedding factory cannot be nil", nil)
	}
	return r.add(Embedding, id, factory, false, opts)
}

// Resolve returns the factory registered for id, or for the default id when
// id is empty. The factory is not invoked.
func (r *Registry) Resolve(c Capability, id string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cat, err := r.category(c)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = cat.def
	}
	f, ok := cat.factories[id]
	if !ok {
		return nil, kerrors.New(kerrors.CodeUnknownService,
			fmt.Sprintf("%s service with service_id %q not found", c, id), nil).
			WithAttribute("capability", string(c))
	}
	return f, nil
}

// TextCompletionFactory resolves a text completion factory.
func (r *Registry) TextCompletionFactory(id string) (TextCompletionFactory, error) {
	f, err := r.Resolve(TextCompletion, id)
	if err != nil {
		return nil, err
	}
	return f.(TextCompletionFactory), nil
}

// ChatCompletionFactory resolves a chat completion factory.
func (r *Registry) ChatCompletionFactory(id string) (ChatCompletionFactory, error) {
	f, err := r.Resolve(ChatCompletion, id)
	if err != nil {
		return nil, err
	}
	return f.(ChatCompletionFactory), nil
}

// EmbeddingFactory resolves an embedding factory.
func (r *Registry) EmbeddingFactory(id string) (EmbeddingFactory, error) {
	f, err := r.Resolve(Embedding, id)
	if err != nil {
		return nil, err
	}
	return f.(EmbeddingFactory), nil
}

// SetDefault makes id the default of capability c.
func (r *Registry) SetDefault(c Capability, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cat, err := r.category(c)
	if err != nil {
		return err
	}
	if _, ok := cat.factories[id]; !ok {
		return kerrors.New(kerrors.CodeUnknownService,
			fmt.Sprintf("%s service with service_id %q does not exist", c, id), nil)
	}
	cat.def = id
	return nil
}

// DefaultID returns the default id of capability c, or "".
func (r *Registry) DefaultID(c Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cat, ok := r.cats[c]; ok {
		return cat.def
	}
	return ""
}

// IDs returns the ids registered for c in registration order.
func (r *Registry) IDs(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cat, ok := r.cats[c]; ok {
		return slices.Clone(cat.ids)
	}
	return nil
}

// Remove unregisters id. When id was the default, the next registered id
// takes over.
func (r *Registry) Remove(c Capability, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cat, err := r.category(c)
	if err != nil {
		return err
	}
	if _, ok := cat.factories[id]; !ok {
		return kerrors.New(kerrors.CodeUnknownService,
			fmt.Sprintf("%s service with service_id %q does not exist", c, id), nil)
	}
	delete(cat.factories, id)
	cat.ids = slices.DeleteFunc(cat.ids, func(s string) bool { return s == id })
	if cat.def == id {
		cat.def = ""
		if len(cat.ids) > 0 {
			cat.def = cat.ids[0]
		}
		r.logger.Info("services.default.moved",
			slog.String("capability", string(c)),
			slog.String("removed", id),
			slog.String("default", cat.def),
		)
	}
	return nil
}

// Clear removes every service of capability c.
func (r *Registry) Clear(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.category(c); err != nil {
		return err
	}
	r.cats[c] = &category{factories: make(map[string]any)}
	return nil
}

// ClearAll removes every service.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.cats {
		r.cats[c] = &category{factories: make(map[string]any)}
	}
}
