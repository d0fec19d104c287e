// Package assistant – intent.go maps short natural-language messages to
// the equivalent command, so "what are my tasks" works without the user
// knowing the slash syntax. Only short messages are checked; anything
// longer is real conversation and belongs to the worker.
package assistant

import (
	"strings"

	"github.com/v-sk/alice/pkg/alice/channels"
	"github.com/v-sk/alice/pkg/alice/store"
)

// intentKeywords maps a command name to the phrases that trigger it.
// Matching is a case-insensitive substring scan, first hit wins.
var intentKeywords = []struct {
	command  string
	keywords []string
}{
	{"help", []string{"help", "how do i use", "what can you do", "menu", "commands"}},
	{"status", []string{"status", "my tier", "my level", "my account", "what tier"}},
	{"tasks", []string{"tasks", "task list", "what are you watching"}},
}

// detectIntent returns the command name matching the text, or "".
func detectIntent(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.command
			}
		}
	}
	return ""
}

// handleIntent answers a short message as if the matching command had
// been typed. Returns ok=false when no intent matched.
func (a *Assistant) handleIntent(prompt string, msg *channels.IncomingMessage, user *store.User) (string, bool) {
	switch detectIntent(prompt) {
	case "help":
		return helpText, true
	case "status":
		return a.statusCommand(user), true
	case "tasks":
		return a.tasksCommand(user, nil), true
	default:
		return "", false
	}
}
