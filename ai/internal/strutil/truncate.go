// Package strutil holds small string helpers shared by the ai layer.
package strutil

// Truncate shortens s to at most maxLen runes and appends "..." when anything
// was cut. Rune-based so multi-byte text never splits mid-character; a
// non-positive maxLen yields the empty string.
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
