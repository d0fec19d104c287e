// Package tier defines the user entitlement levels for Alice and the
// feature capabilities each level unlocks. Tiers form a closed, ordered
// set (Bronze < Silver < Gold); everything downstream dispatches on the
// capability struct, never on raw tier strings.
package tier

import "strings"

// Tier is a user entitlement level.
type Tier string

const (
	// Bronze is the default tier: stateless chat, no tasks.
	Bronze Tier = "bronze"

	// Silver adds conversation memory and scheduled tasks, still on
	// ephemeral workers, with Gold-only features gated off.
	Silver Tier = "silver"

	// Gold adds a persistent worker session and the full feature set.
	Gold Tier = "gold"
)

// Capabilities describes what a tier is allowed to do.
type Capabilities struct {
	// Memory enables the per-user conversation memory window.
	Memory bool

	// Tasks enables creating and running scheduled tasks.
	Tasks bool

	// PersistentSession routes the user to a long-lived worker
	// sandbox instead of one-shot containers.
	PersistentSession bool

	// GatedFeatures lists reserved-feature keywords that should be
	// refused with an upgrade hint. Empty means nothing is gated.
	GatedFeatures []string
}

// defaultGatedFeatures are the Gold-only feature keywords checked for
// Silver users. A substring match on the prompt triggers the upgrade
// hint instead of a worker run.
var defaultGatedFeatures = []string{
	"browse", "open the page", "open this page", "visit ",
	"search the web", "google ", "look it up online",
}

// Parse normalizes a tier string. Unknown values fall back to Bronze,
// matching the behavior for users that predate a tier rename.
func Parse(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Silver:
		return Silver
	case Gold:
		return Gold
	default:
		return Bronze
	}
}

// Valid reports whether s names one of the three known tiers.
func Valid(s string) bool {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Bronze, Silver, Gold:
		return true
	}
	return false
}

// Capabilities returns the feature set for the tier.
func (t Tier) Capabilities() Capabilities {
	switch t {
	case Gold:
		return Capabilities{
			Memory:            true,
			Tasks:             true,
			PersistentSession: true,
		}
	case Silver:
		return Capabilities{
			Memory:        true,
			Tasks:         true,
			GatedFeatures: defaultGatedFeatures,
		}
	default:
		return Capabilities{}
	}
}

// AtLeast reports whether t is equal to or above other in the
// Bronze < Silver < Gold ordering.
func (t Tier) AtLeast(other Tier) bool {
	return t.rank() >= other.rank()
}

func (t Tier) rank() int {
	switch t {
	case Gold:
		return 2
	case Silver:
		return 1
	default:
		return 0
	}
}

// Gated returns the first gated-feature keyword found in the prompt,
// or "" if the prompt is allowed for this tier. The check is a plain
// case-insensitive substring scan.
func (t Tier) Gated(prompt string) string {
	caps := t.Capabilities()
	if len(caps.GatedFeatures) == 0 {
		return ""
	}
	lower := strings.ToLower(prompt)
	for _, kw := range caps.GatedFeatures {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}
