package coreskills

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/memory"
	"github.com/jllopis/semkernel/pkg/orchestration"
	"github.com/jllopis/semkernel/pkg/text"
)

func run(t *testing.T, k *kernel.Kernel, skill, name string, vars map[string]string, input string) *orchestration.Context {
	t.Helper()
	fn, err := k.Func(skill, name)
	require.NoError(t, err)
	v := orchestration.NewVariablesFrom(vars)
	v.Update(input)
	kctx, err := k.Run(context.Background(), []*orchestration.Function{fn}, kernel.WithInputVariables(v))
	require.NoError(t, err)
	return kctx
}

func TestRegister(t *testing.T) {
	k := kernel.New()
	require.NoError(t, Register(k))
	for _, skill := range []string{TextSkillName, MathSkillName, TimeSkillName, MemorySkillName, WaitSkillName} {
		assert.Contains(t, k.Collection().Skills(), skill)
	}
	assert.Error(t, Register(k), "skills are registered once")
}

func TestTextSkill(t *testing.T) {
	k := kernel.New()
	_, err := k.ImportSkill(Text{}, TextSkillName)
	require.NoError(t, err)

	tests := []struct {
		fn   string
		in   string
		want string
	}{
		{"trim", "  hi  ", "hi"},
		{"trimStart", "  hi  ", "hi  "},
		{"trimEnd", "  hi  ", "  hi"},
		{"uppercase", "hi", "HI"},
		{"lowercase", "HI", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, k, TextSkillName, tt.fn, nil, tt.in).Result())
		})
	}
}

func TestMathSkill(t *testing.T) {
	k := kernel.New()
	_, err := k.ImportSkill(Math{}, MathSkillName)
	require.NoError(t, err)

	assert.Equal(t, "15", run(t, k, MathSkillName, "Add", map[string]string{"Amount": "5"}, "10").Result())
	assert.Equal(t, "-5", run(t, k, MathSkillName, "subtract", map[string]string{"amount": "15"}, "10").Result())

	bad := run(t, k, MathSkillName, "Add", map[string]string{"Amount": "five"}, "10")
	assert.True(t, bad.ErrorOccurred())
	assert.True(t, kerrors.Is(bad.LastError(), kerrors.CodeInvalidInput))

	missing := run(t, k, MathSkillName, "Add", nil, "10")
	assert.True(t, missing.ErrorOccurred())

	notNumber := run(t, k, MathSkillName, "Add", map[string]string{"Amount": "1"}, "ten")
	assert.Contains(t, notNumber.LastErrorDescription(), "not in numeric format")
}

func TestTimeSkill(t *testing.T) {
	fixed := time.Date(2031, time.January, 12, 21, 15, 7, 0, time.UTC)
	k := kernel.New()
	_, err := k.ImportSkill(Time{Now: func() time.Time { return fixed }}, TimeSkillName)
	require.NoError(t, err)

	tests := []struct {
		fn   string
		in   string
		want string
	}{
		{"today", "", "Sunday, 12 January, 2031"},
		{"now", "", "Sunday, January 12, 2031 09:15 PM"},
		{"utcNow", "", "Sunday, January 12, 2031 09:15 PM"},
		{"time", "", "09:15:07 PM"},
		{"year", "", "2031"},
		{"month", "", "January"},
		{"monthNumber", "", "01"},
		{"day", "", "12"},
		{"dayOfWeek", "", "Sunday"},
		{"hour", "", "09 PM"},
		{"hourNumber", "", "21"},
		{"minute", "", "15"},
		{"second", "", "07"},
		{"timeZoneOffset", "", "+0000"},
		{"timeZoneName", "", "UTC"},
		{"daysAgo", "3", "Thursday, 09 January, 2031"},
		{"dateMatchingLastDayName", "sunday", "Sunday, 05 January, 2031"},
		{"dateMatchingLastDayName", "Friday", "Friday, 10 January, 2031"},
	}
	for _, tt := range tests {
		t.Run(tt.fn+tt.in, func(t *testing.T) {
			kctx := run(t, k, TimeSkillName, tt.fn, nil, tt.in)
			require.False(t, kctx.ErrorOccurred(), kctx.LastErrorDescription())
			assert.Equal(t, tt.want, kctx.Result())
		})
	}

	assert.True(t, run(t, k, TimeSkillName, "daysAgo", nil, "x").ErrorOccurred())
	assert.True(t, run(t, k, TimeSkillName, "dateMatchingLastDayName", nil, "someday").ErrorOccurred())
}

func TestWaitSkill(t *testing.T) {
	k := kernel.New()
	_, err := k.ImportSkill(Wait{}, WaitSkillName)
	require.NoError(t, err)

	assert.False(t, run(t, k, WaitSkillName, "seconds", nil, "0.01").ErrorOccurred())
	assert.False(t, run(t, k, WaitSkillName, "seconds", nil, "-1").ErrorOccurred())
	assert.True(t, run(t, k, WaitSkillName, "seconds", nil, "soon").ErrorOccurred())

	fn, err := k.Func(WaitSkillName, "seconds")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	kctx, err := k.Run(ctx, []*orchestration.Function{fn}, kernel.WithInput("10"))
	require.NoError(t, err)
	assert.True(t, kctx.ErrorOccurred())
}

// keywordEmbedder maps text onto two axes: geography and food.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, s string) ([]float32, error) {
	s = strings.ToLower(s)
	v := []float32{0.01, 0.01}
	if strings.Contains(s, "capital") || strings.Contains(s, "paris") {
		v[0] = 1
	}
	if strings.Contains(s, "pizza") {
		v[1] = 1
	}
	return v, nil
}

func TestTextMemorySkill(t *testing.T) {
	mem := memory.NewVectorMemory(memory.NewInMemoryStore(), keywordEmbedder{})
	k := kernel.New(kernel.WithMemory(mem))
	_, err := k.ImportSkill(NewTextMemory(nil), MemorySkillName)
	require.NoError(t, err)

	saved := run(t, k, MemorySkillName, "save", map[string]string{KeyParam: "fact1"}, "The capital of France is Paris")
	require.False(t, saved.ErrorOccurred(), saved.LastErrorDescription())
	saved = run(t, k, MemorySkillName, "save", map[string]string{KeyParam: "fact2"}, "Pizza comes from Naples")
	require.False(t, saved.ErrorOccurred(), saved.LastErrorDescription())

	got, err := mem.Get(context.Background(), DefaultCollection, "fact1")
	require.NoError(t, err)
	require.NotNil(t, got)

	recalled := run(t, k, MemorySkillName, "recall", nil, "what is the capital?")
	require.False(t, recalled.ErrorOccurred(), recalled.LastErrorDescription())
	assert.Equal(t, "The capital of France is Paris", recalled.Result())

	many := run(t, k, MemorySkillName, "recall", map[string]string{LimitParam: "2", RelevanceParam: "0"}, "capital")
	assert.True(t, strings.HasPrefix(many.Result(), `["The capital of France is Paris"`))

	none := run(t, k, MemorySkillName, "recall", map[string]string{CollectionParam: "empty"}, "capital")
	assert.False(t, none.ErrorOccurred())
	assert.Equal(t, "", none.Result())

	noKey := run(t, k, MemorySkillName, "save", nil, "orphan")
	assert.True(t, kerrors.Is(noKey.LastError(), kerrors.CodeInvalidInput))

	removed := run(t, k, MemorySkillName, "remove", map[string]string{KeyParam: "fact1"}, "")
	require.False(t, removed.ErrorOccurred(), removed.LastErrorDescription())
	gone, err := mem.Get(context.Background(), DefaultCollection, "fact1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestConversationSummary(t *testing.T) {
	provider := &llm.MockProvider{Response: "summary"}
	k := kernel.New()
	require.NoError(t, k.AddChatService("mock", llm.NewClient(provider, "m")))

	words := func(s string) int { return len(strings.Fields(s)) }
	summary, err := NewConversationSummary(k, text.WithCounter(words))
	require.NoError(t, err)
	_, err = k.ImportSkill(summary, SummarySkillName)
	require.NoError(t, err)

	short := run(t, k, SummarySkillName, "SummarizeConversation", nil, "Alice: hi. Bob: hello.")
	require.False(t, short.ErrorOccurred(), short.LastErrorDescription())
	assert.Equal(t, "summary", short.Result())
	require.Len(t, provider.Requests(), 1)
	assert.Contains(t, provider.Requests()[0].Messages[0].Content, "Alice: hi. Bob: hello.")
	assert.Equal(t, SummaryMaxTokens, provider.Requests()[0].MaxTokens)

	long := run(t, k, SummarySkillName, "SummarizeConversation", nil, strings.Repeat("Alice said something. ", 800))
	require.False(t, long.ErrorOccurred(), long.LastErrorDescription())
	calls := len(provider.Requests()) - 1
	assert.GreaterOrEqual(t, calls, 2)
	assert.Equal(t, strings.TrimSuffix(strings.Repeat("summary\n", calls), "\n"), long.Result())
}

func TestConversationSummaryNeedsService(t *testing.T) {
	_, err := NewConversationSummary(kernel.New())
	assert.True(t, kerrors.Is(err, kerrors.CodeConfiguration))
}
