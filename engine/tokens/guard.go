// Package tokens bounds text units to the embedding API's token budget
// using a conservative characters-per-token estimate. Every text unit
// passes through the guard immediately before embedding; an unbounded
// unit would be rejected by the remote API and abort the whole batch.
package tokens

import "strings"

// TruncationMarker is appended to any text the guard cuts, so downstream
// consumers and tests can detect that truncation occurred.
const TruncationMarker = "\n\n[Text truncated to fit token limit]"

const (
	// DefaultMaxTokens leaves headroom under the embedding API's hard
	// 8192-token limit.
	DefaultMaxTokens = 8000
	// DefaultCharsPerToken is a conservative estimate for English prose.
	DefaultCharsPerToken = 4
)

// Guard estimates token counts and truncates oversized text. The zero
// value is not usable; construct with NewGuard.
type Guard struct {
	maxTokens     int
	charsPerToken int
}

// NewGuard creates a Guard with the given ceiling. Non-positive values
// fall back to defaults. The ceiling is raised to the minimum that fits
// TruncationMarker, so Bound's output never estimates above it.
func NewGuard(maxTokens, charsPerToken int) Guard {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	if minTokens := (len(TruncationMarker) + charsPerToken - 1) / charsPerToken; maxTokens < minTokens {
		maxTokens = minTokens
	}
	return Guard{maxTokens: maxTokens, charsPerToken: charsPerToken}
}

// Default returns a Guard with the default ceiling.
func Default() Guard {
	return NewGuard(DefaultMaxTokens, DefaultCharsPerToken)
}

// MaxTokens returns the configured token ceiling.
func (g Guard) MaxTokens() int { return g.maxTokens }

// Estimate returns the estimated token count for text.
func (g Guard) Estimate(text string) int {
	return (len(text) + g.charsPerToken - 1) / g.charsPerToken
}

// maxChars is the character budget implied by the token ceiling.
func (g Guard) maxChars() int {
	return g.maxTokens * g.charsPerToken
}

// Bound truncates text so its estimated token count never exceeds the
// ceiling, appending TruncationMarker when a cut happens. Pure and
// deterministic; Bound(Bound(s)) == Bound(s) because the marker is
// budgeted inside the cut.
func (g Guard) Bound(text string) string {
	limit := g.maxChars()
	if len(text) <= limit {
		return text
	}
	cut := limit - len(TruncationMarker)
	if cut < 0 {
		cut = 0
	}
	// Hard cut at the computed boundary; back up to a rune start so the
	// output stays valid UTF-8.
	for cut > 0 && !utf8Start(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationMarker
}

// Truncated reports whether text carries the guard's truncation marker.
func Truncated(text string) bool {
	return strings.HasSuffix(text, TruncationMarker)
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
