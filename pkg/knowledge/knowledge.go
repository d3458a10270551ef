package knowledge

import "context"

// Snippet is a unit of retrieved memory text with its relevance score.
// Snippets are produced per query and never persisted beyond the turn.
type Snippet struct {
	ID    string
	Text  string
	Score float64
}

// Document is a unit of text to index.
type Document struct {
	ID   string
	Text string
}

// Retriever queries the knowledge index for the snippets most relevant to a
// query. At most topK snippets are returned, all scoring above cutoff,
// ordered by descending relevance. An empty result is valid and means "no
// sufficiently relevant memory".
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, cutoff float64) ([]Snippet, error)
}

// Indexer accepts new documents into the knowledge index.
type Indexer interface {
	Upsert(ctx context.Context, doc Document) error
}
