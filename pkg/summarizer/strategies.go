package summarizer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/thinkgate/pkg/utils"
)

const (
	minSteps       = 2
	maxSteps       = 3
	maxStepLen     = 60
	minSentenceLen = 5
	maxQuoteLen    = 40
	previewWords   = 15
	maxPreviewLen  = 120
)

// stepPattern matches an ordinal cue ("First", "Then", "Next", "Finally") or
// a numbered item ("2.") followed by a clause running to the next comma or
// period.
var stepPattern = regexp.MustCompile(`(?i)(?:\b(?:first|then|next|finally)\b|\b\d+\.)\s+([^.,]+)`)

// StepTrace extracts up to three ordered steps when the reasoning is
// structured as a sequence.
func StepTrace(text string) (string, bool) {
	matches := stepPattern.FindAllStringSubmatch(text, -1)

	steps := make([]string, 0, maxSteps)
	for _, m := range matches {
		clause := strings.TrimSpace(m[1])
		if clause == "" {
			continue
		}
		steps = append(steps, utils.Clip(clause, maxStepLen))
	}

	if len(steps) < minSteps {
		return "", false
	}
	if len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}

	return fmt.Sprintf("Logic trace: %s...", strings.Join(steps, "; ")), true
}

// Bookend quotes the beginning of the first and last sentences.
func Bookend(text string) (string, bool) {
	var sentences []string
	for part := range strings.SplitSeq(text, ".") {
		s := strings.TrimSpace(part)
		if utf8.RuneCountInString(s) > minSentenceLen {
			sentences = append(sentences, s)
		}
	}

	if len(sentences) < 2 {
		return "", false
	}

	return fmt.Sprintf("The model started with '%s...' and concluded that '%s...'",
		utils.Clip(sentences[0], maxQuoteLen),
		utils.Clip(sentences[len(sentences)-1], maxQuoteLen),
	), true
}

// Preview shows the first words of the reasoning.
func Preview(text string) (string, bool) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "", false
	}
	if len(words) > previewWords {
		words = words[:previewWords]
	}

	return fmt.Sprintf("Quick thought: %s...", utils.Clip(strings.Join(words, " "), maxPreviewLen)), true
}
