package chatbot

import (
	"github.com/pkg/errors"
)

// ErrUnknownModel is returned when a model has no known context window size.
// Budget math on a guessed window would either waste context or overflow the
// provider's limit, so an unknown model refuses construction.
var ErrUnknownModel = errors.New("chatbot: unknown model")

// modelMaxTokens maps model identifiers to their context window size in
// tokens. The window covers prompt plus response.
var modelMaxTokens = map[string]int{
	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-3.5-turbo":     4096,
	"gpt-3.5-turbo-16k": 16384,
}

// MaxTokensForModel resolves a model's context window. Entries in overrides
// extend or replace the built-in table.
func MaxTokensForModel(model string, overrides map[string]int) (int, error) {
	if n, ok := overrides[model]; ok {
		if n <= 0 {
			return 0, errors.Wrapf(ErrUnknownModel, "%q: override window %d must be positive", model, n)
		}
		return n, nil
	}
	if n, ok := modelMaxTokens[model]; ok {
		return n, nil
	}
	return 0, errors.Wrapf(ErrUnknownModel, "%q", model)
}
