package chunk

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/recall/pkg/tokens"
)

// ErrInvalidConfig is returned when the chunk size / overlap combination
// would produce a non-positive stride.
var ErrInvalidConfig = errors.New("chunk: invalid config")

// Chunker splits text into token-level windows of Size tokens, with Overlap
// tokens shared between consecutive windows so context at chunk boundaries is
// not lost.
type Chunker struct {
	counter *tokens.Counter
	size    int
	overlap int
}

// NewChunker validates the window parameters up front. Size must be strictly
// greater than overlap, and overlap non-negative; anything else makes the
// stride degenerate.
func NewChunker(counter *tokens.Counter, size, overlap int) (*Chunker, error) {
	if counter == nil {
		return nil, errors.New("chunk: counter is nil")
	}
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "chunk size %d must be positive", size)
	}
	if overlap < 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "chunk overlap %d must be non-negative", overlap)
	}
	if size-overlap <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "chunk size %d must exceed overlap %d", size, overlap)
	}
	return &Chunker{counter: counter, size: size, overlap: overlap}, nil
}

// Stride returns the token distance between consecutive window starts.
func (c *Chunker) Stride() int {
	return c.size - c.overlap
}

// Split encodes text and slices the token sequence into overlapping windows,
// decoding each window back to text. The final window may be shorter than the
// configured size. Empty text yields no chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	ids, err := c.counter.Encode(text)
	if err != nil {
		return nil, errors.Wrap(err, "chunk: encode text")
	}

	var chunks []string
	for start := 0; start < len(ids); start += c.Stride() {
		// A trailing window whose fresh portion is empty would re-emit
		// tokens the previous window already covered.
		if start > 0 && start+c.overlap >= len(ids) {
			break
		}
		end := start + c.size
		if end > len(ids) {
			end = len(ids)
		}
		decoded, err := c.counter.Decode(ids[start:end])
		if err != nil {
			return nil, errors.Wrapf(err, "chunk: decode window [%d:%d]", start, end)
		}
		chunks = append(chunks, decoded)
	}
	return chunks, nil
}
