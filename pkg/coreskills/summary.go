package coreskills

import (
	"context"

	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/orchestration"
	"github.com/jllopis/semkernel/pkg/text"
)

// SummaryMaxTokens bounds the text sent to one summary call.
const SummaryMaxTokens = 1024

const summarizeConversationPrompt = `BEGIN CONTENT TO SUMMARIZE:
{{$input}}
END CONTENT TO SUMMARIZE.
Summarize the conversation in 'CONTENT TO SUMMARIZE', identifying main points of discussion and any conclusions that were reached.
Do not incorporate other general knowledge.
Summary is in plain text, in complete sentences, with no markup or tags.

BEGIN SUMMARY:
`

// ConversationSummary summarizes long transcripts chunk by chunk with a
// semantic function.
type ConversationSummary struct {
	summarize *orchestration.Function
	opts      []text.Option
}

// NewConversationSummary registers the per-chunk summary function on k.
// It needs a text or chat completion service. opts configure token
// counting for chunking.
func NewConversationSummary(k *kernel.Kernel, opts ...text.Option) (*ConversationSummary, error) {
	fn, err := k.CreateSemanticFunction(summarizeConversationPrompt,
		kernel.WithSkillName(SummarySkillName),
		kernel.WithFunctionName("summarizeChunk"),
		kernel.WithDescription("Given a section of a conversation transcript, summarize the part of the conversation."),
		kernel.WithRequestSettings(&llm.RequestSettings{MaxTokens: SummaryMaxTokens, Temperature: 0.1, TopP: 0.5}),
	)
	if err != nil {
		return nil, err
	}
	return &ConversationSummary{summarize: fn, opts: opts}, nil
}

// NativeFunctions implements kernel.NativeSkill.
func (s *ConversationSummary) NativeFunctions() []orchestration.NativeDefinition {
	return []orchestration.NativeDefinition{{
		Name:        "SummarizeConversation",
		Description: "Given a long conversation transcript, summarize the conversation.",
		Input:       &orchestration.ParameterView{Name: "input", Description: "A long conversation transcript."},
		Fn:          s.summarizeConversation,
	}}
}

func (s *ConversationSummary) summarizeConversation(ctx context.Context, kctx *orchestration.Context) (*orchestration.Context, error) {
	lines := text.SplitPlainTextLines(kctx.Variables.Input(), SummaryMaxTokens, s.opts...)
	paragraphs := text.SplitPlainTextParagraphs(lines, SummaryMaxTokens, s.opts...)
	return text.AggregateChunkedResults(ctx, s.summarize, paragraphs, kctx)
}
