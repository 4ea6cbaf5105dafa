// Package monitor runs the channel watching pipeline: source matching,
// global filtering, forwarding, per-user history, and in-process broadcast.
package monitor

import (
	"strconv"
	"strings"

	"github.com/hrygo/channelwatch/store"
)

// Event is one captured message, as emitted to subscribers and persisted to
// history.
type Event struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Source    string `json:"source"`
	SourceID  int64  `json:"sourceId"`
	Timestamp string `json:"timestamp"`
}

// MatchesFilters is the per-user delivery predicate. The same function gates
// history persistence and websocket delivery so a user never sees an event in
// one surface but not the other.
func MatchesFilters(f *store.MonitorFilters, ev *Event) bool {
	if f == nil || !f.Enabled {
		return false
	}
	if len(f.Channels) > 0 {
		sourceID := strconv.FormatInt(ev.SourceID, 10)
		matched := false
		for _, ch := range f.Channels {
			if ch == ev.Source || ch == sourceID || ch == "@"+ev.Source {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(f.Keywords) > 0 {
		text := strings.ToLower(ev.Text)
		matched := false
		for _, kw := range f.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	// filters.users is stored and exposed but not enforced.
	return true
}

// keywordSentinel disables the global keyword gate when it is the only entry.
const keywordSentinel = "none"

// keywordGateActive reports whether the global keyword filter applies.
func keywordGateActive(keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	if len(keywords) == 1 && strings.EqualFold(keywords[0], keywordSentinel) {
		return false
	}
	return true
}

// collapseWhitespace folds every whitespace run into a single space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ForwardText renders the alert sent to the target channel.
func ForwardText(text, sourceName string) string {
	return "🔔【New Alert】\n\n" + collapseWhitespace(text) + "\n\n— Source: " + sourceName
}
