package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Index wraps a bleve index as the library-provided retrieval engine.
type Index struct {
	idx bleve.Index
}

var (
	_ Retriever = &Index{}
	_ Indexer   = &Index{}
)

// UserIndexPath returns the on-disk location of one user's index under the
// storage root.
func UserIndexPath(root, userID string) string {
	return filepath.Join(root, "storages", fmt.Sprintf("storage_%s", userID))
}

// Open opens the index at path, creating it when it does not exist yet.
func Open(path string) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("knowledge index: empty path")
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Debug().Str("component", "knowledge").Str("path", path).Msg("creating new index")
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "knowledge index: open %s", path)
	}
	return &Index{idx: idx}, nil
}

// NewMemOnly builds an in-memory index for tests and ephemeral runs.
func NewMemOnly() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, errors.Wrap(err, "knowledge index: new mem-only")
	}
	return &Index{idx: idx}, nil
}

// Upsert indexes a document, assigning a fresh ID when none is given.
func (x *Index) Upsert(_ context.Context, doc Document) error {
	if x == nil || x.idx == nil {
		return errors.New("knowledge index: nil index")
	}
	if strings.TrimSpace(doc.Text) == "" {
		return errors.New("knowledge index: document text is empty")
	}
	id := doc.ID
	if id == "" {
		id = fmt.Sprintf("doc_id_%s", uuid.NewString())
	}
	if err := x.idx.Index(id, map[string]interface{}{"text": doc.Text}); err != nil {
		return errors.Wrapf(err, "knowledge index: index document %s", id)
	}
	return nil
}

// Retrieve runs a match query and keeps at most topK hits scoring above
// cutoff. Hits come back in bleve's descending-score order, which is stable
// for equal scores.
func (x *Index) Retrieve(ctx context.Context, query string, topK int, cutoff float64) ([]Snippet, error) {
	if x == nil || x.idx == nil {
		return nil, errors.New("knowledge index: nil index")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("knowledge index: query is empty")
	}
	if topK <= 0 {
		return nil, errors.Errorf("knowledge index: topK %d must be positive", topK)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), topK, 0, false)
	req.Fields = []string{"text"}
	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "knowledge index: search")
	}

	snippets := make([]Snippet, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if hit.Score <= cutoff {
			continue
		}
		text, _ := hit.Fields["text"].(string)
		snippets = append(snippets, Snippet{ID: hit.ID, Text: text, Score: hit.Score})
	}
	return snippets, nil
}

// IndexDirectory ingests every .txt and .md file under dir as one document
// each. This seeds a user's personal knowledge base.
func (x *Index) IndexDirectory(ctx context.Context, dir string) (int, error) {
	if x == nil || x.idx == nil {
		return 0, errors.New("knowledge index: nil index")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "knowledge index: read dir %s", dir)
	}

	indexed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return indexed, errors.Wrapf(err, "knowledge index: read %s", entry.Name())
		}
		if err := x.Upsert(ctx, Document{ID: entry.Name(), Text: string(raw)}); err != nil {
			return indexed, err
		}
		indexed++
	}
	log.Debug().Str("component", "knowledge").Str("dir", dir).Int("documents", indexed).Msg("indexed directory")
	return indexed, nil
}

// DocCount reports the number of indexed documents.
func (x *Index) DocCount() (uint64, error) {
	if x == nil || x.idx == nil {
		return 0, errors.New("knowledge index: nil index")
	}
	return x.idx.DocCount()
}

func (x *Index) Close() error {
	if x == nil || x.idx == nil {
		return nil
	}
	return x.idx.Close()
}
