package chatbot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/recall/pkg/chunk"
	"github.com/go-go-golems/recall/pkg/completion"
	"github.com/go-go-golems/recall/pkg/history"
	"github.com/go-go-golems/recall/pkg/knowledge"
	"github.com/go-go-golems/recall/pkg/summarize"
	"github.com/go-go-golems/recall/pkg/tokens"
)

const testTemplate = "History: %s\nHuman: %s\nAssistant:"

type fakeClient struct {
	mu      sync.Mutex
	prompts []string
	answers []string
	errs    []error
}

func (f *fakeClient) Complete(_ context.Context, req completion.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, req.Prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	switch {
	case len(f.answers) == 0:
		return "ok", nil
	case i >= len(f.answers):
		return f.answers[len(f.answers)-1], nil
	default:
		return f.answers[i], nil
	}
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeClient) prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i]
}

type fakeRetriever struct {
	snippets []knowledge.Snippet
	err      error
}

func (f *fakeRetriever) Retrieve(context.Context, string, int, float64) ([]knowledge.Snippet, error) {
	return f.snippets, f.err
}

func mustCounter(t *testing.T) *tokens.Counter {
	t.Helper()
	counter, err := tokens.NewCounter(tokens.DefaultEncoding)
	require.NoError(t, err)
	return counter
}

func baseOptions(t *testing.T, client completion.Client) Options {
	t.Helper()
	return Options{
		Counter:           mustCounter(t),
		Store:             history.NewMemoryStore(),
		Client:            client,
		Model:             "gpt-4",
		MaxResponseTokens: 1000,
		PromptTemplate:    testTemplate,
	}
}

func TestConverse_SingleTurn(t *testing.T) {
	client := &fakeClient{answers: []string{"4"}}
	bot, err := NewBot(baseOptions(t, client))
	require.NoError(t, err)

	ctx := context.Background()
	answer, err := bot.Converse(ctx, "u1", "What is 2+2?")
	require.NoError(t, err)
	require.Equal(t, "4", answer)

	require.Equal(t, 1, client.calls())
	require.Contains(t, client.prompt(0), "Human: What is 2+2?")

	turns, err := bot.opts.Store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "What is 2+2?", turns[0].UserQuery)
	require.Equal(t, "4", turns[0].BotResponse)
}

func TestConverse_HistoryFlowsIntoNextTurn(t *testing.T) {
	client := &fakeClient{answers: []string{"4", "8"}}
	bot, err := NewBot(baseOptions(t, client))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = bot.Converse(ctx, "u1", "What is 2+2?")
	require.NoError(t, err)
	_, err = bot.Converse(ctx, "u1", "Double it")
	require.NoError(t, err)

	second := client.prompt(1)
	require.Contains(t, second, "USER: What is 2+2?")
	require.Contains(t, second, "ASSISTANT: 4")
	require.Contains(t, second, "Human: Double it")
}

func TestConverse_SnippetsPrecedeHistory(t *testing.T) {
	client := &fakeClient{}
	opts := baseOptions(t, client)
	opts.Retriever = &fakeRetriever{snippets: []knowledge.Snippet{
		{ID: "doc_id_1", Text: "USER: favorite color?, ANSWER: blue", Score: 0.9},
	}}
	opts.TopK = 3
	bot, err := NewBot(opts)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, opts.Store.Append(ctx, "u1", history.Turn{
		Timestamp:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		UserQuery:   "hello",
		BotResponse: "hi",
	}))

	_, err = bot.Converse(ctx, "u1", "what do I like?")
	require.NoError(t, err)

	prompt := client.prompt(0)
	snipAt := strings.Index(prompt, "favorite color?")
	histAt := strings.Index(prompt, "USER: hello")
	require.GreaterOrEqual(t, snipAt, 0)
	require.GreaterOrEqual(t, histAt, 0)
	require.Less(t, snipAt, histAt)
}

func TestConverse_RetrievalFailureDegradesToHistoryOnly(t *testing.T) {
	client := &fakeClient{}
	opts := baseOptions(t, client)
	opts.Retriever = &fakeRetriever{err: errors.New("index offline")}
	opts.TopK = 3
	bot, err := NewBot(opts)
	require.NoError(t, err)

	answer, err := bot.Converse(context.Background(), "u1", "hello")
	require.NoError(t, err)
	require.Equal(t, "ok", answer)
}

func TestConverse_ColdStartEmptyHistory(t *testing.T) {
	client := &fakeClient{}
	bot, err := NewBot(baseOptions(t, client))
	require.NoError(t, err)

	answer, err := bot.Converse(context.Background(), "fresh-user", "hi")
	require.NoError(t, err)
	require.Equal(t, "ok", answer)
	require.Contains(t, client.prompt(0), "History: \n")
}

func TestConverse_OverBudgetSummarizesOnce(t *testing.T) {
	counter := mustCounter(t)
	chunker, err := chunk.NewChunker(counter, 512, 0)
	require.NoError(t, err)

	sumClient := &fakeClient{answers: []string{"condensed-history"}}
	summarizer, err := summarize.NewSummarizer(sumClient, chunker, summarize.Options{
		Model:            "tiny-model",
		MaxSummaryTokens: 64,
		Temperature:      0.7,
	})
	require.NoError(t, err)

	botClient := &fakeClient{answers: []string{"fine"}}
	opts := baseOptions(t, botClient)
	opts.Model = "tiny-model"
	opts.ModelMaxTokens = map[string]int{"tiny-model": 200}
	opts.MaxResponseTokens = 50
	opts.Summarizer = summarizer
	bot, err := NewBot(opts)
	require.NoError(t, err)

	ctx := context.Background()
	// 8 turns overflow the 200 token window but still fit one 512 token
	// summarization chunk, so exactly one summary call is expected.
	for i := 0; i < 8; i++ {
		require.NoError(t, opts.Store.Append(ctx, "u1", history.Turn{
			Timestamp:   time.Date(2024, 3, 1, 10, 0, i, 0, time.UTC),
			UserQuery:   fmt.Sprintf("a fairly long question number %d about many things", i),
			BotResponse: fmt.Sprintf("a fairly long answer number %d covering many details", i),
		}))
	}

	answer, err := bot.Converse(ctx, "u1", "next question")
	require.NoError(t, err)
	require.Equal(t, "fine", answer)

	require.Equal(t, 1, sumClient.calls())
	require.Equal(t, 1, botClient.calls())
	final := botClient.prompt(0)
	require.Contains(t, final, "condensed-history")
	require.NotContains(t, final, "question number 0")

	// The degraded prompt must itself pass the budget check: the window
	// minus the reserved response slice still covers another full response.
	finalTokens, err := counter.Count(final)
	require.NoError(t, err)
	remaining := 200 - (50 + finalTokens)
	require.GreaterOrEqual(t, remaining, 50)
}

func TestConverse_OverBudgetWithoutSummarizerFails(t *testing.T) {
	client := &fakeClient{}
	opts := baseOptions(t, client)
	opts.Model = "tiny-model"
	opts.ModelMaxTokens = map[string]int{"tiny-model": 120}
	opts.MaxResponseTokens = 50
	bot, err := NewBot(opts)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, opts.Store.Append(ctx, "u1", history.Turn{
			Timestamp:   time.Date(2024, 3, 1, 10, 0, i, 0, time.UTC),
			UserQuery:   "a long enough question to overflow the tiny window",
			BotResponse: "a long enough answer to overflow the tiny window",
		}))
	}

	_, err = bot.Converse(ctx, "u1", "next")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMemoryTooLarge))
	require.Equal(t, 0, client.calls())
}

func TestConverse_CompletionFailureStoresNothing(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("provider down")}}
	opts := baseOptions(t, client)
	bot, err := NewBot(opts)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = bot.Converse(ctx, "u1", "hello")
	require.Error(t, err)

	turns, err := opts.Store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestConverse_Validation(t *testing.T) {
	bot, err := NewBot(baseOptions(t, &fakeClient{}))
	require.NoError(t, err)

	_, err = bot.Converse(context.Background(), "", "hello")
	require.Error(t, err)
	_, err = bot.Converse(context.Background(), "u1", "")
	require.Error(t, err)
}

func TestConverse_ConcurrentTurnsAllLand(t *testing.T) {
	client := &fakeClient{}
	opts := baseOptions(t, client)
	bot, err := NewBot(opts)
	require.NoError(t, err)

	ctx := context.Background()
	const n = 8
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			_, err := bot.Converse(gctx, "u1", fmt.Sprintf("question %d", i))
			return err
		})
		g.Go(func() error {
			_, err := bot.Converse(gctx, fmt.Sprintf("other-%d", i), "hello")
			return err
		})
	}
	require.NoError(t, g.Wait())

	turns, err := opts.Store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, turns, n)
}

func TestNewBot_Validation(t *testing.T) {
	client := &fakeClient{}

	opts := baseOptions(t, client)
	opts.Model = "gpt-7-nano"
	_, err := NewBot(opts)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownModel))

	opts = baseOptions(t, client)
	opts.Counter = nil
	_, err = NewBot(opts)
	require.Error(t, err)

	opts = baseOptions(t, client)
	opts.Client = nil
	_, err = NewBot(opts)
	require.Error(t, err)

	opts = baseOptions(t, client)
	opts.PromptTemplate = "only one %s"
	_, err = NewBot(opts)
	require.Error(t, err)

	opts = baseOptions(t, client)
	opts.MaxResponseTokens = 9000 // larger than the gpt-4 window
	_, err = NewBot(opts)
	require.Error(t, err)
}

func TestBudget_RemainingShrinksAsMemoryGrows(t *testing.T) {
	counter := mustCounter(t)
	window := 8192
	reserved := 1000

	remainingFor := func(turns int) int {
		var memory []history.Turn
		for i := 0; i < turns; i++ {
			memory = append(memory, history.Turn{
				Timestamp:   time.Date(2024, 3, 1, 10, 0, i, 0, time.UTC),
				UserQuery:   fmt.Sprintf("question %d", i),
				BotResponse: fmt.Sprintf("answer %d", i),
			})
		}
		prompt := fmt.Sprintf(testTemplate, history.FormatBlock(memory), "next")
		n, err := counter.Count(prompt)
		require.NoError(t, err)
		return window - (reserved + n)
	}

	prev := remainingFor(0)
	for _, turns := range []int{1, 5, 20} {
		cur := remainingFor(turns)
		require.Less(t, cur, prev, "remaining budget must shrink with %d turns", turns)
		prev = cur
	}
}

func TestMaxTokensForModel(t *testing.T) {
	n, err := MaxTokensForModel("gpt-4", nil)
	require.NoError(t, err)
	require.Equal(t, 8192, n)

	n, err = MaxTokensForModel("gpt-3.5-turbo-16k", nil)
	require.NoError(t, err)
	require.Equal(t, 16384, n)

	n, err = MaxTokensForModel("custom", map[string]int{"custom": 2048})
	require.NoError(t, err)
	require.Equal(t, 2048, n)

	// overrides win over the built-in table
	n, err = MaxTokensForModel("gpt-4", map[string]int{"gpt-4": 4096})
	require.NoError(t, err)
	require.Equal(t, 4096, n)

	_, err = MaxTokensForModel("nope", nil)
	require.True(t, errors.Is(err, ErrUnknownModel))
}
