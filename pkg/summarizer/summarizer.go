// Package summarizer produces a short, bounded digest of a closed reasoning
// region.
//
// A Summarizer is an ordered chain of Strategy functions. Each strategy
// inspects the normalized reasoning text and either returns a digest or
// declines; the first digest wins. Every strategy is pure and deterministic,
// and the final digest is clipped to MaxDigestLen runes.
package summarizer

import (
	"strings"

	"github.com/papercomputeco/thinkgate/pkg/utils"
)

const (
	// DefaultDigest is returned for empty reasoning and when no strategy
	// produces a digest.
	DefaultDigest = "Analysis performed."

	// MaxDigestLen bounds every digest, in runes.
	MaxDigestLen = 256
)

// Strategy derives a digest from normalized reasoning text. It returns false
// when it does not apply to the text.
type Strategy func(text string) (string, bool)

// Summarizer runs an ordered chain of strategies.
type Summarizer struct {
	strategies []Strategy
}

// New creates a Summarizer that tries strategies in order. With no
// strategies it uses DefaultStrategies.
func New(strategies ...Strategy) *Summarizer {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Summarizer{strategies: strategies}
}

// DefaultStrategies returns the standard chain: structured steps, then
// first/last sentence bookends, then a word preview.
func DefaultStrategies() []Strategy {
	return []Strategy{StepTrace, Bookend, Preview}
}

// Summarize returns the digest for the full raw reasoning text of one region.
func (s *Summarizer) Summarize(reasoning string) string {
	text := Normalize(reasoning)
	if text == "" {
		return DefaultDigest
	}

	for _, strategy := range s.strategies {
		if digest, ok := strategy(text); ok {
			return utils.Clip(digest, MaxDigestLen)
		}
	}

	return DefaultDigest
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Normalize collapses line breaks to spaces and trims surrounding
// whitespace.
func Normalize(text string) string {
	return strings.TrimSpace(newlines.Replace(text))
}
