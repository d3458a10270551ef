package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrUnavailable signals that the backing store could not be reached. It is
// distinct from "no history yet", which is an empty slice, not an error.
var ErrUnavailable = errors.New("history: store unavailable")

// Turn is one question/answer exchange. Turns are immutable once created and
// identified by their second-resolution timestamp within a user's sequence.
type Turn struct {
	Timestamp   time.Time `json:"timestamp"`
	UserQuery   string    `json:"user_query"`
	BotResponse string    `json:"bot_response"`
}

// NewTurn stamps a turn with the current time, truncated to seconds.
func NewTurn(userQuery, botResponse string) Turn {
	return Turn{
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		UserQuery:   userQuery,
		BotResponse: botResponse,
	}
}

// Store persists per-user conversation history. Get returns an empty slice
// for a never-seen user. Append is a read-modify-write; callers must hold the
// per-user critical section for the whole fetch-answer-append sequence.
type Store interface {
	Get(ctx context.Context, userID string) ([]Turn, error)
	Append(ctx context.Context, userID string, turn Turn) error
	Close() error
}

// SortNewestFirst orders turns by timestamp descending, in place. The sort is
// stable so same-second turns keep their stored order.
func SortNewestFirst(turns []Turn) {
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.After(turns[j].Timestamp)
	})
}

// FormatTurn serializes one turn the way the prompt template consumes it.
func FormatTurn(t Turn) string {
	return fmt.Sprintf("[%s] USER: %s\nASSISTANT: %s",
		t.Timestamp.Format("2006-01-02 15:04:05"), t.UserQuery, t.BotResponse)
}

// FormatBlock renders the history as a single newline-joined block, newest
// turn first. An empty history renders as the empty string.
func FormatBlock(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	ordered := append([]Turn(nil), turns...)
	SortNewestFirst(ordered)

	lines := make([]string, 0, len(ordered))
	for _, t := range ordered {
		lines = append(lines, FormatTurn(t))
	}
	return strings.Join(lines, "\n")
}
