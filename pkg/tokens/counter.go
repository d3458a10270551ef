package tokens

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// ErrUnknownEncoding is returned when the encoding identifier cannot be
// resolved to a tiktoken codec.
var ErrUnknownEncoding = errors.New("tokens: unknown encoding")

// DefaultEncoding is the encoding used by the gpt-3.5/gpt-4 model families.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens against a fixed model encoding. It is stateless and
// safe for concurrent use.
//
// The count is only meaningful when the encoding matches the completion
// model's tokenizer. A mismatched encoding does not fail — it silently
// miscalculates the prompt budget.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter resolves the named encoding (e.g. "cl100k_base") and returns a
// counter bound to it.
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownEncoding, "%q: %v", encoding, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the exact number of tokens in text under the counter's
// encoding. Empty text counts as zero.
func (c *Counter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "tokens: encode")
	}
	return len(ids), nil
}

// Encode returns the token ids for text.
func (c *Counter) Encode(text string) ([]uint, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return nil, errors.Wrap(err, "tokens: encode")
	}
	return ids, nil
}

// Decode reassembles text from token ids.
func (c *Counter) Decode(ids []uint) (string, error) {
	text, err := c.codec.Decode(ids)
	if err != nil {
		return "", errors.Wrap(err, "tokens: decode")
	}
	return text, nil
}
