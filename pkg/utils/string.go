package utils

// Truncate shortens s to at most maxLen characters and marks the cut with an
// ellipsis. Characters are counted as runes so multi-byte text is never split
// mid-character.
func Truncate(s string, maxLen int) string {
	clipped := Clip(s, maxLen)
	if len(clipped) == len(s) {
		return s
	}
	return clipped + "..."
}

// Clip returns the first maxLen runes of s, without any marker.
func Clip(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}

	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}
