// Package text splits long text into token-bounded lines and paragraphs
// and aggregates the results of running a function over each chunk.
package text

import (
	"strings"
	"unicode/utf8"

	"github.com/jllopis/semkernel/pkg/llm"
)

// Counter returns the number of tokens in a string.
type Counter func(string) int

type options struct {
	count Counter
}

// Option configures a split.
type Option func(*options)

// WithCounter counts tokens with c.
func WithCounter(c Counter) Option {
	return func(o *options) {
		if c != nil {
			o.count = c
		}
	}
}

// WithModel counts tokens with the tiktoken encoding of model.
func WithModel(model string) Option {
	return func(o *options) { o.count = llm.CountFunc(model) }
}

func newOptions(opts []Option) options {
	o := options{count: llm.EstimateTokens}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Separator levels, tried in order. A nil level cuts at the middle.
var (
	plainTextSeparators = [][]string{
		{"\n", "\r"},
		{"."},
		{"?", "!"},
		{";"},
		{":"},
		{","},
		{")", "]", "}"},
		{" "},
		{"-"},
		nil,
	}
	markdownSeparators = [][]string{
		{"."},
		{"?", "!"},
		{";"},
		{":"},
		{","},
		{")", "]", "}"},
		{" "},
		{"-"},
		nil,
	}
)

// SplitPlainTextLines splits text into lines of at most maxTokens tokens,
// cutting at newlines first and then at punctuation and spaces.
func SplitPlainTextLines(text string, maxTokens int, opts ...Option) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return splitLines(text, maxTokens, plainTextSeparators, newOptions(opts))
}

// SplitMarkdownLines splits markdown text into lines of at most maxTokens
// tokens. Newlines are kept inside lines.
func SplitMarkdownLines(text string, maxTokens int, opts ...Option) []string {
	return splitLines(text, maxTokens, markdownSeparators, newOptions(opts))
}

// SplitPlainTextParagraphs groups lines into paragraphs of at most
// maxTokens tokens. Lines longer than maxTokens are split first.
func SplitPlainTextParagraphs(lines []string, maxTokens int, opts ...Option) []string {
	o := newOptions(opts)
	var split []string
	for _, line := range lines {
		split = append(split, splitLines(strings.ReplaceAll(line, "\r\n", "\n"), maxTokens, plainTextSeparators, o)...)
	}
	return paragraphs(split, maxTokens, o)
}

// SplitMarkdownParagraphs is SplitPlainTextParagraphs for markdown lines.
func SplitMarkdownParagraphs(lines []string, maxTokens int, opts ...Option) []string {
	o := newOptions(opts)
	var split []string
	for _, line := range lines {
		split = append(split, splitLines(line, maxTokens, markdownSeparators, o)...)
	}
	return paragraphs(split, maxTokens, o)
}

func splitLines(text string, maxTokens int, levels [][]string, o options) []string {
	var out []string
	for _, piece := range split(text, maxTokens, levels, 0, o) {
		if piece = strings.TrimSpace(piece); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func split(text string, maxTokens int, levels [][]string, level int, o options) []string {
	if text == "" {
		return nil
	}
	if o.count(text) <= maxTokens || level >= len(levels) {
		return []string{text}
	}

	seps := levels[level]
	cut := -1
	if seps == nil {
		cut = middle(text)
	} else {
		cut = cutPoint(text, seps)
	}
	if cut <= 0 || cut >= len(text) {
		if seps == nil {
			return []string{text}
		}
		return split(text, maxTokens, levels, level+1, o)
	}
	return append(split(text[:cut], maxTokens, levels, level, o), split(text[cut:], maxTokens, levels, level, o)...)
}

// cutPoint returns the offset just after the separator closest to the
// middle of text, preferring the earlier one on ties.
func cutPoint(text string, seps []string) int {
	half := len(text) / 2
	cut := -1
	for i := 0; i < len(text); i++ {
		for _, sep := range seps {
			if !strings.HasPrefix(text[i:], sep) {
				continue
			}
			if abs(half-i) < abs(half-cut) {
				cut = i + len(sep)
			}
		}
	}
	return cut
}

func middle(text string) int {
	half := len(text) / 2
	for half > 0 && !utf8.RuneStart(text[half]) {
		half--
	}
	return half
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// paragraphs packs lines into paragraphs and folds a short trailing
// paragraph into the previous one when the two fit together.
func paragraphs(lines []string, maxTokens int, o options) []string {
	var out []string
	var current strings.Builder
	for _, line := range lines {
		if current.Len() > 0 && o.count(current.String())+o.count(line)+1 >= maxTokens {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		out = append(out, strings.TrimSpace(current.String()))
	}

	if n := len(out); n > 1 {
		last, prev := out[n-1], out[n-2]
		if float64(o.count(last)) < float64(maxTokens)/4 {
			if len(strings.Split(last, " "))+len(strings.Split(prev, " ")) <= maxTokens {
				out[n-2] = prev + " " + last
				out = out[:n-1]
			}
		}
	}
	return out
}
