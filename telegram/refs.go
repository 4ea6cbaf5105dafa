package telegram

import (
	"strconv"
	"strings"
)

// NormalizeRef reduces a channel reference to its canonical comparison form:
// trim whitespace, strip a leading "@", strip the "-100" channel id prefix,
// and lowercase (Telegram usernames are case-insensitive). The three spellings
// "@news", "news" and "-1001234567890" / "1234567890" normalize to equal
// values for the same channel.
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "@")
	if strings.HasPrefix(ref, "-100") && len(ref) > len("-100") {
		rest := ref[len("-100"):]
		if _, err := strconv.ParseInt(rest, 10, 64); err == nil {
			ref = rest
		}
	}
	return strings.ToLower(ref)
}

// RefCandidates returns the normalized identifier set of an incoming chat:
// its username (when present) and its raw id in decimal form. An event matches
// a configured ref when any candidate equals the normalized ref.
func RefCandidates(chatID int64, username string) []string {
	candidates := make([]string, 0, 2)
	if username != "" {
		candidates = append(candidates, NormalizeRef(username))
	}
	if chatID != 0 {
		candidates = append(candidates, NormalizeRef(strconv.FormatInt(chatID, 10)))
	}
	return candidates
}

// IsNumericRef reports whether the ref is an id form rather than a username.
func IsNumericRef(ref string) bool {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "-")
	if ref == "" {
		return false
	}
	_, err := strconv.ParseInt(ref, 10, 64)
	return err == nil
}
