// Package prompts holds the job catalog: every AI job the service exposes,
// with its system prompt, required payload fields, and input budgets.
package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownJob is returned by Get for job ids outside the catalog.
var ErrUnknownJob = fmt.Errorf("unknown job")

// ErrMissingField is wrapped into Build errors for absent required fields.
var ErrMissingField = fmt.Errorf("missing required field")

// Input budgets in characters. Free text beyond the budget is clipped before
// it reaches the provider.
const (
	BudgetSummarize        = 5000
	BudgetTranslate        = 6000
	BudgetExtract          = 3000
	BudgetSentiment        = 500
	BudgetFilterMatch      = 1000
	BudgetLanguageLearning = 3000
	BudgetChatNotes        = 15000

	DigestMaxItems    = 20
	DigestMaxItemSize = 120
)

// Job composes the provider prompt for one catalog entry.
type Job struct {
	ID     string
	System string
	build  func(payload map[string]any) (string, error)
}

// Build validates the payload and returns the user prompt.
func (j *Job) Build(payload map[string]any) (string, error) {
	return j.build(payload)
}

// Get looks a job up by id.
func Get(jobID string) (*Job, error) {
	job, ok := catalog[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, jobID)
	}
	return job, nil
}

// IDs returns every catalog job id, sorted.
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var catalog = map[string]*Job{
	"analysis": {
		ID: "analysis",
		System: "You are a monitoring analyst. Given a message captured from a " +
			"Telegram channel, produce a one-paragraph assessment: what the message " +
			"is about, why it may matter, and any entities it mentions. Be factual " +
			"and concise.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetSummarize)
			if err != nil {
				return "", err
			}
			return "Analyze the following captured message:\n\n" + text, nil
		},
	},
	"chat": {
		ID:     "chat",
		System: "You are a helpful assistant. Answer directly and keep a conversational tone.",
		build: func(p map[string]any) (string, error) {
			return requireText(p, "message", 0)
		},
	},
	"summarize": {
		ID: "summarize",
		System: "You summarize text. Return a concise summary that preserves the " +
			"key facts, names and numbers. Do not add commentary.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetSummarize)
			if err != nil {
				return "", err
			}
			return "Summarize the following text:\n\n" + text, nil
		},
	},
	"translate": {
		ID: "translate",
		System: "You are a translator. Translate the text faithfully, keeping " +
			"formatting and tone. Return only the translation.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetTranslate)
			if err != nil {
				return "", err
			}
			target := optionalString(p, "target")
			if target == "" {
				target = "English"
			}
			return fmt.Sprintf("Translate the following text to %s:\n\n%s", target, text), nil
		},
	},
	"language_learning": {
		ID: "language_learning",
		System: "You are a language tutor. Explain the given text for a learner: " +
			"break down vocabulary, grammar and idioms, then give one or two " +
			"practice variations.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetLanguageLearning)
			if err != nil {
				return "", err
			}
			return "Teach me from this text:\n\n" + text, nil
		},
	},
	"research": {
		ID: "research",
		System: "You are a research assistant. Give a structured, sourced-style " +
			"overview of the topic: background, current state, open questions.",
		build: func(p map[string]any) (string, error) {
			topic, err := requireText(p, "topic", 0)
			if err != nil {
				return "", err
			}
			return "Research the following topic:\n\n" + topic, nil
		},
	},
	"coding_tool_use": {
		ID: "coding_tool_use",
		System: "You plan tool invocations for a coding task. Decide which tools " +
			"to run and in what order. Respond with JSON only.",
		build: func(p map[string]any) (string, error) {
			task, err := requireText(p, "task", 0)
			if err != nil {
				return "", err
			}
			return "Plan the tool calls for this task:\n\n" + task + "\n\n" +
				jsonSkeleton(`{"steps": [{"tool": "...", "input": "...", "reason": "..."}]}`), nil
		},
	},
	"function_call": {
		ID: "function_call",
		System: "You select a function to call for the user's request. Respond " +
			"with JSON only.",
		build: func(p map[string]any) (string, error) {
			task, err := requireText(p, "task", 0)
			if err != nil {
				return "", err
			}
			prompt := "Request:\n\n" + task
			if functions := optionalString(p, "functions"); functions != "" {
				prompt += "\n\nAvailable functions:\n" + functions
			}
			return prompt + "\n\n" +
				jsonSkeleton(`{"function": "...", "arguments": {}}`), nil
		},
	},
	"claude_skill": {
		ID: "claude_skill",
		System: "You execute a named skill against the given input. Follow the " +
			"skill's contract exactly and return only its output.",
		build: func(p map[string]any) (string, error) {
			skill, err := requireText(p, "skill", 0)
			if err != nil {
				return "", err
			}
			input, err := requireText(p, "input", 0)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Skill: %s\n\nInput:\n%s", skill, input), nil
		},
	},
	"categorize": {
		ID: "categorize",
		System: "You assign a single category to the text. Respond with JSON " +
			"only.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetExtract)
			if err != nil {
				return "", err
			}
			prompt := "Categorize the following text"
			if categories := optionalString(p, "categories"); categories != "" {
				prompt += " into one of: " + categories
			}
			return prompt + ":\n\n" + text + "\n\n" +
				jsonSkeleton(`{"category": "...", "confidence": 0.0}`), nil
		},
	},
	"extract": {
		ID: "extract",
		System: "You extract structured entities from text. Respond with JSON " +
			"only.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetExtract)
			if err != nil {
				return "", err
			}
			return "Extract entities from the following text:\n\n" + text + "\n\n" +
				jsonSkeleton(`{"entities": [{"type": "...", "value": "..."}]}`), nil
		},
	},
	"sentiment": {
		ID: "sentiment",
		System: "You classify sentiment. Respond with JSON only.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetSentiment)
			if err != nil {
				return "", err
			}
			return "Classify the sentiment of the following text:\n\n" + text + "\n\n" +
				jsonSkeleton(`{"sentiment": "positive|neutral|negative", "score": 0.0}`), nil
		},
	},
	"smart_filter_match": {
		ID: "smart_filter_match",
		System: "You judge whether a message matches the user's filter criteria " +
			"beyond literal keywords. Respond with JSON only.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetFilterMatch)
			if err != nil {
				return "", err
			}
			criteria, err := requireText(p, "criteria", BudgetFilterMatch)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Criteria:\n%s\n\nMessage:\n%s\n\n%s",
				criteria, text,
				jsonSkeleton(`{"match": true, "reason": "..."}`)), nil
		},
	},
	"digest": {
		ID: "digest",
		System: "You write a compact digest of captured channel messages: group " +
			"related items, surface the notable ones first, one line each.",
		build: func(p map[string]any) (string, error) {
			items, err := requireItems(p, "items")
			if err != nil {
				return "", err
			}
			if len(items) > DigestMaxItems {
				items = items[:DigestMaxItems]
			}
			var b strings.Builder
			b.WriteString("Write a digest of these messages:\n")
			for i, item := range items {
				fmt.Fprintf(&b, "%d. %s\n", i+1, clip(item, DigestMaxItemSize))
			}
			return b.String(), nil
		},
	},
	"rank_relevance": {
		ID: "rank_relevance",
		System: "You rank items by relevance to a query. Respond with JSON " +
			"only.",
		build: func(p map[string]any) (string, error) {
			query, err := requireText(p, "query", 0)
			if err != nil {
				return "", err
			}
			items, err := requireItems(p, "items")
			if err != nil {
				return "", err
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Query: %s\n\nItems:\n", query)
			for i, item := range items {
				fmt.Fprintf(&b, "%d. %s\n", i+1, item)
			}
			b.WriteString("\n")
			b.WriteString(jsonSkeleton(`{"ranking": [{"index": 1, "score": 0.0}]}`))
			return b.String(), nil
		},
	},
	"chat_summary": {
		ID: "chat_summary",
		System: "You maintain a rolling summary of a conversation. Return a " +
			"short paragraph covering the topics discussed and any decisions " +
			"made, suitable as context for future turns.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetChatNotes)
			if err != nil {
				return "", err
			}
			return "Summarize this conversation:\n\n" + text, nil
		},
	},
	"chat_notes": {
		ID: "chat_notes",
		System: "You turn a conversation transcript into clean study notes in " +
			"markdown: headline, key points, and actionable takeaways.",
		build: func(p map[string]any) (string, error) {
			text, err := requireText(p, "text", BudgetChatNotes)
			if err != nil {
				return "", err
			}
			return "Write notes for this conversation:\n\n" + text, nil
		},
	},
}

// requireText pulls a non-empty string field, clipping to budget when
// budget > 0.
func requireText(payload map[string]any, key string, budget int) (string, error) {
	text := optionalString(payload, key)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	if budget > 0 {
		text = clip(text, budget)
	}
	return text, nil
}

// requireItems pulls a non-empty string list; []any payloads (decoded JSON)
// are stringified element-wise.
func requireItems(payload map[string]any, key string) ([]string, error) {
	raw, ok := payload[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []any:
		for _, item := range v {
			items = append(items, fmt.Sprintf("%v", item))
		}
	default:
		return nil, fmt.Errorf("%w: %q must be a list", ErrMissingField, key)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	return items, nil
}

func optionalString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// clip truncates at rune boundaries so multi-byte text is never split.
func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func jsonSkeleton(schema string) string {
	return "Return JSON matching exactly this shape:\n" + schema
}
