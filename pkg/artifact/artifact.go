// Package artifact strips stray marker-shaped tokens from final answer text.
//
// Reasoning models occasionally hallucinate tag-like tokens such as a second
// "</think>" or an invented "<answer>" at the start of the final answer. The
// splitter consumes the real reasoning markers before text reaches this
// package, so anything tag-shaped that remains is an artifact.
package artifact

import "regexp"

// tokenPattern matches an opening or closing tag wrapped around a bare word:
// "<word>" or "</word>", where word is letters, digits, or underscores.
var tokenPattern = regexp.MustCompile(`</?[\p{L}\p{N}_]+>`)

// Strip removes every marker-shaped token from text and leaves all other
// characters untouched and in order. Removal repeats until no token remains,
// so a token assembled by an earlier removal ("<<b>b>") is stripped too and
// Strip(Strip(s)) == Strip(s).
func Strip(text string) string {
	for text != "" {
		stripped := tokenPattern.ReplaceAllLiteralString(text, "")
		if stripped == text {
			break
		}
		text = stripped
	}
	return text
}
