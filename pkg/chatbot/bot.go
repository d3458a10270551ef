package chatbot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/recall/pkg/completion"
	"github.com/go-go-golems/recall/pkg/events"
	"github.com/go-go-golems/recall/pkg/history"
	"github.com/go-go-golems/recall/pkg/knowledge"
	"github.com/go-go-golems/recall/pkg/summarize"
	"github.com/go-go-golems/recall/pkg/tokens"
)

// ErrMemoryTooLarge is returned when the assembled prompt exceeds the model's
// budget and no summarizer is configured to shrink it.
var ErrMemoryTooLarge = errors.New("chatbot: memory block exceeds token budget")

// Options wires the bot's collaborators and per-turn parameters.
//
// Counter, Store and Client are required. Retriever, Indexer, Summarizer and
// Publisher are optional: a nil Retriever skips knowledge lookup, a nil
// Summarizer turns an over-budget prompt into an error instead of a degrade,
// a nil Publisher skips turn events.
type Options struct {
	Counter    *tokens.Counter
	Store      history.Store
	Retriever  knowledge.Retriever
	Indexer    knowledge.Indexer
	Summarizer *summarize.Summarizer
	Client     completion.Client
	Publisher  *events.Publisher

	Model string
	// ModelMaxTokens extends or overrides the built-in context-window table.
	ModelMaxTokens    map[string]int
	MaxResponseTokens int
	Temperature       float32
	TopP              float32
	PresencePenalty   float32
	FrequencyPenalty  float32
	PromptTemplate    string
	TopK              int
	SimilarityCutoff  float64
}

// Bot runs the per-turn pipeline: fetch memory, assemble a prompt under the
// model's token budget, complete with retries, persist the finished turn.
//
// Each user's turns are serialized; turns for distinct users run concurrently.
type Bot struct {
	opts      Options
	maxTokens int

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewBot validates the options and resolves the model's context window.
func NewBot(opts Options) (*Bot, error) {
	if opts.Counter == nil {
		return nil, errors.New("chatbot: token counter is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("chatbot: history store is nil")
	}
	if opts.Client == nil {
		return nil, errors.New("chatbot: completion client is nil")
	}
	if opts.MaxResponseTokens <= 0 {
		return nil, errors.Errorf("chatbot: max response tokens %d must be positive", opts.MaxResponseTokens)
	}
	if err := ValidatePromptTemplate(opts.PromptTemplate); err != nil {
		return nil, err
	}
	if opts.Retriever != nil && opts.TopK <= 0 {
		return nil, errors.Errorf("chatbot: top k %d must be positive", opts.TopK)
	}
	maxTokens, err := MaxTokensForModel(opts.Model, opts.ModelMaxTokens)
	if err != nil {
		return nil, err
	}
	if opts.MaxResponseTokens >= maxTokens {
		return nil, errors.Errorf("chatbot: max response tokens %d leaves no room in a %d token window",
			opts.MaxResponseTokens, maxTokens)
	}
	return &Bot{
		opts:      opts,
		maxTokens: maxTokens,
		userLocks: map[string]*sync.Mutex{},
	}, nil
}

// userLock returns the mutex serializing one user's turns, creating it on
// first use. Locks are never dropped; the map grows with the user population.
func (b *Bot) userLock(userID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		b.userLocks[userID] = l
	}
	return l
}

// Converse runs one full turn for a user and returns the assistant's answer.
// The whole fetch-answer-append sequence holds the user's lock, so a turn
// always sees every prior turn of the same user.
func (b *Bot) Converse(ctx context.Context, userID, query string) (string, error) {
	if userID == "" {
		return "", errors.New("chatbot: user id is empty")
	}
	if query == "" {
		return "", errors.New("chatbot: query is empty")
	}

	lock := b.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	turns, err := b.opts.Store.Get(ctx, userID)
	if err != nil {
		return "", errors.Wrapf(err, "chatbot: fetch history for %s", userID)
	}

	memoryBlock := b.assembleMemory(ctx, userID, query, turns)
	prompt, summarized, err := b.buildPrompt(ctx, memoryBlock, query)
	if err != nil {
		return "", err
	}

	answer, err := b.complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	turn := history.NewTurn(query, answer)
	if err := b.opts.Store.Append(ctx, userID, turn); err != nil {
		return "", errors.Wrapf(err, "chatbot: append turn for %s", userID)
	}

	// The answer is committed; indexing and event publishing are
	// best-effort from here on.
	if b.opts.Indexer != nil {
		doc := knowledge.Document{Text: fmt.Sprintf("USER: %s, ANSWER: %s", query, answer)}
		if err := b.opts.Indexer.Upsert(ctx, doc); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to index finished turn")
		}
	}
	if b.opts.Publisher != nil {
		ev := events.TurnEvent{
			UserID:      userID,
			Timestamp:   turn.Timestamp,
			UserQuery:   query,
			BotResponse: answer,
			Summarized:  summarized,
		}
		if err := b.opts.Publisher.PublishTurn(ctx, ev); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to publish turn event")
		}
	}

	return answer, nil
}

// assembleMemory renders the retrieved snippets (most relevant first)
// followed by the conversation history, newest turn first. A retrieval
// failure degrades to history-only memory rather than failing the turn.
func (b *Bot) assembleMemory(ctx context.Context, userID, query string, turns []history.Turn) string {
	var parts []string
	if b.opts.Retriever != nil {
		snippets, err := b.opts.Retriever.Retrieve(ctx, query, b.opts.TopK, b.opts.SimilarityCutoff)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("knowledge retrieval failed, continuing without it")
		}
		for _, s := range snippets {
			parts = append(parts, s.Text)
		}
	}
	if block := history.FormatBlock(turns); block != "" {
		parts = append(parts, block)
	}
	return strings.Join(parts, "\n")
}

// buildPrompt fills the template and checks the token budget: the prompt and
// the reserved response slice must both fit in the model window. When they do
// not, the memory block is summarized once and the prompt rebuilt; there is
// no recheck after the degrade, the provider's own limit decides from there.
func (b *Bot) buildPrompt(ctx context.Context, memoryBlock, query string) (string, bool, error) {
	prompt := fmt.Sprintf(b.opts.PromptTemplate, memoryBlock, query)
	promptTokens, err := b.opts.Counter.Count(prompt)
	if err != nil {
		return "", false, errors.Wrap(err, "chatbot: count prompt tokens")
	}

	remaining := b.maxTokens - (b.opts.MaxResponseTokens + promptTokens)
	if remaining >= 0 && remaining >= b.opts.MaxResponseTokens {
		return prompt, false, nil
	}

	if b.opts.Summarizer == nil {
		return "", false, errors.Wrapf(ErrMemoryTooLarge,
			"%d prompt tokens leave %d of %d", promptTokens, remaining, b.maxTokens)
	}

	log.Debug().
		Str("component", "chatbot").
		Int("prompt_tokens", promptTokens).
		Int("remaining", remaining).
		Int("model_max", b.maxTokens).
		Msg("memory over budget, summarizing")

	summary, err := b.opts.Summarizer.Summarize(ctx, memoryBlock)
	if err != nil {
		return "", false, errors.Wrap(err, "chatbot: summarize memory")
	}
	return fmt.Sprintf(b.opts.PromptTemplate, summary, query), true, nil
}

// complete issues the completion call. Retry over transient provider errors
// lives inside the client, not here.
func (b *Bot) complete(ctx context.Context, prompt string) (string, error) {
	answer, err := b.opts.Client.Complete(ctx, completion.Request{
		Model:            b.opts.Model,
		Prompt:           prompt,
		MaxTokens:        b.opts.MaxResponseTokens,
		Temperature:      b.opts.Temperature,
		TopP:             b.opts.TopP,
		PresencePenalty:  b.opts.PresencePenalty,
		FrequencyPenalty: b.opts.FrequencyPenalty,
	})
	if err != nil {
		return "", errors.Wrap(err, "chatbot: completion")
	}
	return answer, nil
}
