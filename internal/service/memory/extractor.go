// Package memory extracts and stores durable user facts. Extraction looks
// at the latest user message only and is deterministic, so replaying a
// message always yields the same fact.
package memory

import (
	"regexp"
	"strings"
	"unicode"
)

// Fact is a single remembered statement about the user, already phrased in
// third person for prompt injection. TurnID points at the turn that
// produced it; Extract leaves it empty and the caller fills it in when
// storing.
type Fact struct {
	Text   string `json:"text"`
	Kind   string `json:"kind"` // preference, boundary, identity
	TurnID string `json:"turnId,omitempty"`
}

// patterns are tried in order; the first hit wins so a message produces at
// most one fact. Boundaries outrank preferences because forgetting one is
// worse than forgetting the other.
var patterns = []struct {
	kind   string
	re     *regexp.Regexp
	phrase string
}{
	{"boundary", regexp.MustCompile(`(?i)\b(?:please\s+)?(?:don't|do not|never)\s+(?:call me|mention|bring up|talk about|ask(?: me)? about)\s+(.{2,60})`), "User does not want %s brought up."},
	{"boundary", regexp.MustCompile(`(?i)\bi\s+(?:really\s+)?(?:hate|can't stand|dislike)\s+(?:it when\s+)?(.{2,60})`), "User dislikes %s."},
	{"identity", regexp.MustCompile(`(?i)\bmy name is\s+([a-z][a-z '\-]{1,30})`), "User's name is %s."},
	{"identity", regexp.MustCompile(`(?i)\bi(?:'m| am)\s+(?:a|an)\s+([a-z][a-z \-]{2,40})\b`), "User is a %s."},
	{"preference", regexp.MustCompile(`(?i)\bi\s+(?:really\s+)?(?:like|love|enjoy|prefer)\s+(.{2,60})`), "User prefers %s."},
	{"preference", regexp.MustCompile(`(?i)\bmy favorite\s+(.{2,60})`), "User's favorite %s."},
}

// Extract returns the single most salient fact in the message, or false
// when the message carries nothing worth remembering.
func Extract(message string) (Fact, bool) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Fact{}, false
	}

	for _, p := range patterns {
		m := p.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		captured := tidy(m[1])
		if captured == "" {
			continue
		}
		text := strings.Replace(p.phrase, "%s", captured, 1)
		return Fact{Text: text, Kind: p.kind}, true
	}

	return Fact{}, false
}

// tidy cuts the capture at sentence boundaries and strips trailing noise.
func tidy(s string) string {
	if i := strings.IndexAny(s, ".,!?;\n"); i >= 0 {
		s = s[:i]
	}
	// Drop a trailing subordinate clause; "slow teasing but only sometimes"
	// keeps the head.
	for _, sep := range []string{" but ", " because ", " though ", " and also "} {
		if i := strings.Index(strings.ToLower(s), sep); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	if len(s) < 2 {
		return ""
	}
	return s
}
