package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/recall/pkg/chunk"
	"github.com/go-go-golems/recall/pkg/completion"
)

// summaryPromptTemplate follows the llama-index summary prompt shape.
const summaryPromptTemplate = "Write a summary of the following. Try to use only the " +
	"information provided. " +
	"Try to include as many key details as possible.\n" +
	"\n" +
	"\n" +
	"%s\n" +
	"\n" +
	"\n" +
	"SUMMARY:\"\"\"\n"

// Options bound the size and sampling of each per-chunk summary call.
type Options struct {
	Model            string
	MaxSummaryTokens int
	Temperature      float32
}

// Summarizer collapses an oversized block of memory text into a bounded
// abstractive summary: split into token windows, summarize each window with
// one completion call, join the partial summaries.
//
// This is map-only. If the joined summary is itself still too large, the
// caller's single-pass budget check will not catch it and the provider's own
// limit check decides the turn.
type Summarizer struct {
	client  completion.Client
	chunker *chunk.Chunker
	opts    Options
}

func NewSummarizer(client completion.Client, chunker *chunk.Chunker, opts Options) (*Summarizer, error) {
	if client == nil {
		return nil, errors.New("summarize: completion client is nil")
	}
	if chunker == nil {
		return nil, errors.New("summarize: chunker is nil")
	}
	if opts.Model == "" {
		return nil, errors.New("summarize: model is empty")
	}
	if opts.MaxSummaryTokens <= 0 {
		return nil, errors.Errorf("summarize: max summary tokens %d must be positive", opts.MaxSummaryTokens)
	}
	return &Summarizer{client: client, chunker: chunker, opts: opts}, nil
}

// Summarize splits text and issues one completion call per chunk. Any
// unrecoverable completion error aborts the whole summarization.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	chunks, err := s.chunker.Split(text)
	if err != nil {
		return "", errors.Wrap(err, "summarize: split text")
	}
	if len(chunks) == 0 {
		return "", nil
	}

	log.Debug().
		Str("component", "summarize").
		Int("chunks", len(chunks)).
		Msg("summarizing memory block")

	summaries := make([]string, 0, len(chunks))
	for i, c := range chunks {
		resp, err := s.client.Complete(ctx, completion.Request{
			Model:       s.opts.Model,
			Prompt:      fmt.Sprintf(summaryPromptTemplate, c),
			MaxTokens:   s.opts.MaxSummaryTokens,
			Temperature: s.opts.Temperature,
			TopP:        1,
		})
		if err != nil {
			return "", errors.Wrapf(err, "summarize: chunk %d/%d", i+1, len(chunks))
		}
		summaries = append(summaries, strings.TrimSpace(resp))
	}

	return strings.Join(summaries, " "), nil
}
