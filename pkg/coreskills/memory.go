package coreskills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// Variables read by TextMemory and their defaults.
const (
	CollectionParam = "collection"
	RelevanceParam  = "relevance"
	KeyParam        = "key"
	LimitParam      = "limit"

	DefaultCollection = "generic"
	DefaultRelevance  = "0.75"
	DefaultLimit      = "1"
)

// TextMemory recalls, saves and removes facts in the semantic memory of
// the Context.
//
//	{{memory.recall "what is the capital of France?"}} => Paris
type TextMemory struct {
	logger *slog.Logger
}

// NewTextMemory returns the memory skill. A nil logger uses slog.Default.
func NewTextMemory(logger *slog.Logger) *TextMemory {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextMemory{logger: logger}
}

// NativeFunctions implements kernel.NativeSkill.
func (m *TextMemory) NativeFunctions() []orchestration.NativeDefinition {
	collection := orchestration.ParameterView{
		Name:         CollectionParam,
		Description:  "The collection to search for information",
		DefaultValue: DefaultCollection,
	}
	return []orchestration.NativeDefinition{
		{
			Name:        "recall",
			Description: "Recall a fact from the long term memory",
			Input:       &orchestration.ParameterView{Name: "input", Description: "The information to retrieve"},
			Parameters: []orchestration.ParameterView{
				collection,
				{Name: RelevanceParam, Description: "The relevance score, from 0.0 to 1.0; 1.0 means perfect match", DefaultValue: DefaultRelevance},
				{Name: LimitParam, Description: "The maximum number of relevant memories to recall.", DefaultValue: DefaultLimit},
			},
			Fn: m.recall,
		},
		{
			Name:        "save",
			Description: "Save information to semantic memory",
			Input:       &orchestration.ParameterView{Name: "input", Description: "The information to save"},
			Parameters: []orchestration.ParameterView{
				{Name: CollectionParam, Description: "The collection to save the information", DefaultValue: DefaultCollection},
				{Name: KeyParam, Description: "The unique key to associate with the information"},
			},
			Fn: m.save,
		},
		{
			Name:        "remove",
			Description: "Remove specific information from the long term memory",
			Parameters: []orchestration.ParameterView{
				{Name: CollectionParam, Description: "The collection to remove the information from", DefaultValue: DefaultCollection},
				{Name: KeyParam, Description: "The key of the information to remove"},
			},
			Fn: m.remove,
		},
	}
}

func (m *TextMemory) recall(ctx context.Context, ask string, kctx *orchestration.Context) (string, error) {
	collection := kctx.Variables.GetOr(CollectionParam, DefaultCollection)
	if collection == "" {
		return "", kerrors.New(kerrors.CodeInvalidInput, "memory collection not defined", nil)
	}
	relevance, err := strconv.ParseFloat(strings.TrimSpace(kctx.Variables.GetOr(RelevanceParam, DefaultRelevance)), 32)
	if err != nil {
		return "", kerrors.New(kerrors.CodeInvalidInput, "relevance must be a number between 0 and 1", err)
	}
	limit, err := strconv.Atoi(strings.TrimSpace(kctx.Variables.GetOr(LimitParam, DefaultLimit)))
	if err != nil {
		return "", kerrors.New(kerrors.CodeInvalidInput, "limit must be an integer", err)
	}

	results, err := kctx.Memory().Search(ctx, collection, ask, limit, float32(relevance))
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		m.logger.Warn("coreskills.memory.not_found", slog.String("collection", collection))
		return "", nil
	}
	if limit == 1 {
		return results[0].Text, nil
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	out, err := json.Marshal(texts)
	if err != nil {
		return "", fmt.Errorf("encode recalled memories: %w", err)
	}
	return string(out), nil
}

func (m *TextMemory) save(ctx context.Context, text string, kctx *orchestration.Context) error {
	collection, key, err := record(kctx)
	if err != nil {
		return err
	}
	if err := kctx.Memory().SaveInformation(ctx, collection, text, key); err != nil {
		return err
	}
	m.logger.Debug("coreskills.memory.saved", slog.String("collection", collection), slog.String("key", key))
	return nil
}

func (m *TextMemory) remove(ctx context.Context, kctx *orchestration.Context) error {
	collection, key, err := record(kctx)
	if err != nil {
		return err
	}
	if err := kctx.Memory().Remove(ctx, collection, key); err != nil {
		return err
	}
	m.logger.Debug("coreskills.memory.removed", slog.String("collection", collection), slog.String("key", key))
	return nil
}

// record reads the collection and key a save or remove applies to.
func record(kctx *orchestration.Context) (collection, key string, err error) {
	collection = kctx.Variables.GetOr(CollectionParam, DefaultCollection)
	if collection == "" {
		return "", "", kerrors.New(kerrors.CodeInvalidInput, "memory collection not defined", nil)
	}
	key = kctx.Variables.GetOr(KeyParam, "")
	if key == "" {
		return "", "", kerrors.New(kerrors.CodeInvalidInput, "memory key not defined", nil)
	}
	return collection, key, nil
}
