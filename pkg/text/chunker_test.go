package text

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/semkernel/pkg/orchestration"
)

func words(s string) int { return len(strings.Fields(s)) }

func TestSplitPlainTextLines(t *testing.T) {
	text := "This is a test of the emergency broadcast system. This is only a test."

	assert.Equal(t, []string{
		"This is a test of the emergency broadcast system.",
		"This is only a test.",
	}, SplitPlainTextLines(text, 13))

	assert.Equal(t, []string{
		"This is a test of the",
		"emergency",
		"broadcast system.",
		"This is only a test.",
	}, SplitPlainTextLines(text, 8, WithCounter(func(s string) int { return len(s) / 3 })))
}

func TestSplitPlainTextLinesCutsNearTheMiddle(t *testing.T) {
	assert.Equal(t, []string{"This is a test of. cutting.", "at the half point."},
		SplitPlainTextLines("This is a test of. cutting. at the half point.", 10))
	assert.Equal(t, []string{"This is a test of .", "cutting. at the half point."},
		SplitPlainTextLines("This is a test of . cutting. at the half point.", 10))
}

func TestSplitPlainTextLinesNewlines(t *testing.T) {
	lines := SplitPlainTextLines("first line here\r\nsecond line here", 4)
	assert.Equal(t, []string{"first line here", "second line here"}, lines)
}

func TestSplitWithoutSeparators(t *testing.T) {
	long := strings.Repeat("x", 40)
	lines := SplitPlainTextLines(long, 5)
	require.NotEmpty(t, lines)
	assert.Equal(t, long, strings.Join(lines, ""))
	for _, l := range lines {
		assert.LessOrEqual(t, len(l)/4, 5)
	}
}

func TestSplitMarkdownLines(t *testing.T) {
	assert.Equal(t, []string{
		"This is a test of the emergency broadcast system.",
		"This is only a test.",
	}, SplitMarkdownLines("This is a test of the emergency broadcast system. This is only a test.", 15))
}

func TestSplitPlainTextParagraphs(t *testing.T) {
	lines := []string{
		"This is a test of the emergency broadcast system. This is only a test.",
		"We repeat, this is only a test. A unit test.",
	}
	assert.Equal(t, []string{
		"This is a test of the emergency broadcast system.",
		"This is only a test.",
		"We repeat, this is only a test. A unit test.",
	}, SplitPlainTextParagraphs(lines, 13))

	assert.Empty(t, SplitPlainTextParagraphs(nil, 13))
	assert.Empty(t, SplitMarkdownParagraphs(nil, 10))
}

func TestParagraphsFoldShortTail(t *testing.T) {
	lines := []string{"one two three four five six", "seven"}
	assert.Equal(t, []string{"one two three four five six seven"},
		SplitPlainTextParagraphs(lines, 8, WithCounter(words)))

	lines = []string{"one two three four five", "six seven eight nine ten", "end"}
	assert.Equal(t, []string{"one two three four five", "six seven eight nine ten\nend"},
		SplitPlainTextParagraphs(lines, 10, WithCounter(words)))
}

func TestWithModelCountsTokens(t *testing.T) {
	lines := SplitPlainTextLines("Short text.", 100, WithModel("gpt-4o"))
	assert.Equal(t, []string{"Short text."}, lines)
}

func TestAggregateChunkedResults(t *testing.T) {
	upper, err := orchestration.NewNativeFunction("text", orchestration.NativeDefinition{Name: "upper", Fn: strings.ToUpper})
	require.NoError(t, err)

	kctx := orchestration.NewContext(orchestration.NewVariables("ignored"), nil, nil)
	out, err := AggregateChunkedResults(context.Background(), upper, []string{"a", "b"}, kctx)
	require.NoError(t, err)
	assert.Equal(t, "A\nB", out.Result())
}

func TestAggregateChunkedResultsStopsOnFailure(t *testing.T) {
	calls := 0
	fail, err := orchestration.NewNativeFunction("text", orchestration.NativeDefinition{Name: "fail", Fn: func(string) (string, error) {
		calls++
		return "", errors.New("bad chunk")
	}})
	require.NoError(t, err)

	kctx := orchestration.NewContext(orchestration.NewVariables(""), nil, nil)
	out, err := AggregateChunkedResults(context.Background(), fail, []string{"a", "b"}, kctx)
	require.Error(t, err)
	assert.True(t, out.ErrorOccurred())
	assert.Equal(t, 1, calls)
}
