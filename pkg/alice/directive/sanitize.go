// Package directive – sanitize.go cleans worker output after marker
// stripping. The worker model tends to hedge about its monitoring
// abilities even though monitors are actually persisted; those phrases
// are scrubbed so the reply doesn't contradict reality.
package directive

import (
	"regexp"
	"strings"
)

// wrongPhrases are known hallucinated disclaimers about monitoring
// limitations. They are removed verbatim wherever they appear.
var wrongPhrases = []string{
	"I can only check prices when you ask",
	"I can't actually monitor prices continuously",
	"I don't have the ability to monitor in the background",
	"I'll try to remember to check",
	"only works when you message me",
	"you'll need to ask me again",
	"consider setting an alert on your exchange",
	"set a real price alert on your exchange",
	"I recommend setting up an alert on your exchange",
}

var (
	blankLines  = regexp.MustCompile(`\n{3,}`)
	punctuation = regexp.MustCompile(`[.!?]{2,}`)
)

// Sanitize removes known bad phrasing, collapses runs of blank lines to
// a single blank line, and collapses runs of terminal punctuation to a
// single period.
func Sanitize(text string) string {
	for _, phrase := range wrongPhrases {
		text = strings.ReplaceAll(text, phrase, "")
	}
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = punctuation.ReplaceAllString(text, ".")
	return strings.TrimSpace(text)
}
