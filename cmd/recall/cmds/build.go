package cmds

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/recall/pkg/chatbot"
	"github.com/go-go-golems/recall/pkg/chunk"
	"github.com/go-go-golems/recall/pkg/completion"
	"github.com/go-go-golems/recall/pkg/config"
	"github.com/go-go-golems/recall/pkg/events"
	"github.com/go-go-golems/recall/pkg/history"
	"github.com/go-go-golems/recall/pkg/knowledge"
	"github.com/go-go-golems/recall/pkg/summarize"
	"github.com/go-go-golems/recall/pkg/tokens"
)

// loadConfig resolves the --config flag into a validated configuration,
// falling back to the defaults when no file is given.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// buildStore constructs the history backend named by the configuration.
func buildStore(ctx context.Context, cfg config.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case "memory":
		return history.NewMemoryStore(), nil
	case "redis":
		return history.NewRedisStore(ctx, cfg.History.RedisAddr, cfg.History.RedisPassword, cfg.History.RedisDB)
	case "sqlite":
		dsn, err := history.SQLiteDSNForFile(cfg.History.SQLitePath)
		if err != nil {
			return nil, err
		}
		return history.NewSQLiteStore(dsn)
	default:
		return nil, errors.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// buildPublisher constructs the turn-event transport, or nil when events are
// disabled.
func buildPublisher(cfg config.Config) (*events.Publisher, error) {
	switch cfg.Events.Transport {
	case "none":
		return nil, nil
	case "gochannel":
		return events.NewGoChannelPublisher(), nil
	case "redis":
		return events.BuildRedisPublisher(cfg.Events.RedisAddr)
	default:
		return nil, errors.Errorf("unknown events transport %q", cfg.Events.Transport)
	}
}

// openUserIndex opens (or creates) one user's knowledge index and seeds it
// from the configured data directory when the index is empty.
func openUserIndex(ctx context.Context, cfg config.Config, userID string) (*knowledge.Index, error) {
	idx, err := knowledge.Open(knowledge.UserIndexPath(cfg.Knowledge.RootPath, userID))
	if err != nil {
		return nil, err
	}
	if cfg.Knowledge.DataDir == "" {
		return idx, nil
	}
	count, err := idx.DocCount()
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	if count == 0 {
		indexed, err := idx.IndexDirectory(ctx, cfg.Knowledge.DataDir)
		if err != nil {
			_ = idx.Close()
			return nil, err
		}
		log.Info().Str("user_id", userID).Int("documents", indexed).Msg("seeded knowledge index")
	}
	return idx, nil
}

// buildBot assembles the full pipeline for one user's chat session.
func buildBot(ctx context.Context, cfg config.Config, userID string) (*chatbot.Bot, func(), error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, nil, errors.New("OPENAI_API_KEY is not set")
	}

	counter, err := tokens.NewCounter(cfg.Encoding)
	if err != nil {
		return nil, nil, err
	}
	chunker, err := chunk.NewChunker(counter, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	client, err := completion.NewOpenAIClient(
		completion.Credentials{APIKey: apiKey, BaseURL: os.Getenv("OPENAI_BASE_URL")},
		completion.DefaultRetryPolicy(cfg.MaxRetries),
	)
	if err != nil {
		return nil, nil, err
	}
	summarizer, err := summarize.NewSummarizer(client, chunker, summarize.Options{
		Model:            cfg.Model,
		MaxSummaryTokens: cfg.MaxSummaryTokens,
		Temperature:      cfg.SummaryTemperature,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	idx, err := openUserIndex(ctx, cfg, userID)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	pub, err := buildPublisher(cfg)
	if err != nil {
		_ = idx.Close()
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if pub != nil {
			_ = pub.Close()
		}
		_ = idx.Close()
		_ = store.Close()
	}

	bot, err := chatbot.NewBot(chatbot.Options{
		Counter:           counter,
		Store:             store,
		Retriever:         idx,
		Indexer:           idx,
		Summarizer:        summarizer,
		Client:            client,
		Publisher:         pub,
		Model:             cfg.Model,
		ModelMaxTokens:    cfg.ModelMaxTokens,
		MaxResponseTokens: cfg.MaxResponseTokens,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		PresencePenalty:   cfg.PresencePenalty,
		FrequencyPenalty:  cfg.FrequencyPenalty,
		PromptTemplate:    cfg.PromptTemplate,
		TopK:              cfg.TopK,
		SimilarityCutoff:  cfg.SimilarityCutoff,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return bot, cleanup, nil
}
