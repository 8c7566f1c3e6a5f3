package domain

import (
	"strings"
	"time"
)

// Turn is a single conversation message as supplied by the persistence
// collaborator. The pipeline receives history ordered chronologically and
// treats it as read-only for the duration of a query cycle.
type Turn struct {
	ID        string
	IsUser    bool
	Content   string
	Timestamp time.Time
}

// UserContents returns the content of every user-authored turn in order.
func UserContents(history []Turn) []string {
	out := make([]string, 0, len(history))
	for _, t := range history {
		if t.IsUser {
			out = append(out, t.Content)
		}
	}
	return out
}

// LastUserContents returns up to n most recent user-authored turn contents,
// in chronological order.
func LastUserContents(history []Turn, n int) []string {
	if n <= 0 {
		return nil
	}
	all := UserContents(history)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Transcript renders the last n turns as "User:"/"Assistant:" lines,
// one per turn.
func Transcript(history []Turn, n int) string {
	turns := history
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "Assistant"
		if t.IsUser {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}
