// Package directive implements the control protocol embedded in worker
// output. The worker mutates durable state by wrapping JSON payloads in
// marker pairs ([TASK_CREATE], [TASK_DELETE], [USER_INFO]); this package
// extracts at most one block per kind with an explicit scan (open
// marker, consume until close marker, validate), applies the side
// effects, and returns the text with every recognized block stripped.
//
// Parsing is deliberately lenient: a malformed payload still has its
// marker stripped, with no side effect and no error surfaced to the end
// user. The user-facing text must never show protocol syntax, even on
// parse failure; failures are logged for operators only.
package directive

import (
	"encoding/json"
	"strings"
)

// Marker pairs, one per directive kind.
const (
	openTaskCreate  = "[TASK_CREATE]"
	closeTaskCreate = "[/TASK_CREATE]"
	openTaskDelete  = "[TASK_DELETE]"
	closeTaskDelete = "[/TASK_DELETE]"
	openUserInfo    = "[USER_INFO]"
	closeUserInfo   = "[/USER_INFO]"
)

// createPayload is the JSON body of a [TASK_CREATE] block. Config is
// kept raw so an absent or empty object can be told apart from a
// zero-valued one; a create without a config is malformed.
type createPayload struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// emptyConfig reports whether a create directive's config is absent or
// carries no fields.
func emptyConfig(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == "{}"
}

// deletePayload is the JSON body of a [TASK_DELETE] block. Exactly one
// selector is expected: All, Index (1-based position in the user's task
// listing), or a Coin match optionally narrowed by TaskType.
type deletePayload struct {
	All      bool   `json:"all"`
	Index    int    `json:"index"`
	TaskType string `json:"task_type"`
	Coin     string `json:"coin"`
}

// userInfoPayload is the JSON body of a [USER_INFO] block. Both fields
// are optional and independent; pointers distinguish absent from empty.
type userInfoPayload struct {
	Nickname *string `json:"nickname"`
	Timezone *string `json:"timezone"`
}

// extractBlock scans text for the first open/close marker pair and
// returns the inner body plus the text with the whole block removed.
// An open marker without a matching close marker is left untouched —
// the block boundary is ambiguous and stripping it could eat user text.
func extractBlock(text, open, close string) (body, remaining string, found bool) {
	start := strings.Index(text, open)
	if start < 0 {
		return "", text, false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return "", text, false
	}

	body = strings.TrimSpace(rest[:end])
	remaining = text[:start] + rest[end+len(close):]
	return body, remaining, true
}

// decodeBody parses a directive body into v. Returns false on invalid
// JSON; the caller strips the marker either way.
func decodeBody(body string, v any) bool {
	return json.Unmarshal([]byte(body), v) == nil
}
