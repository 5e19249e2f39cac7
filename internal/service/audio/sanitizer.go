package audio

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`]*`")
	actionRe     = regexp.MustCompile(`\*[^*\n]{0,60}\*`)
	markdownRe   = regexp.MustCompile(`[*_~#>|]+`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// SanitizeForSpeech strips text down to what a voice should actually say:
// no markdown, no emoji, no stage directions, no structural punctuation.
// Pure; the same input always yields the same output.
func SanitizeForSpeech(text string) string {
	s := codeBlockRe.ReplaceAllString(text, " ")
	s = inlineCodeRe.ReplaceAllString(s, " ")
	s = linkRe.ReplaceAllString(s, "$1")
	s = stripEnclosed(s, '(', ')')
	s = stripEnclosed(s, '[', ']')
	// Asterisk-wrapped stage directions are dropped whole; leftover
	// markdown characters just vanish.
	s = actionRe.ReplaceAllString(s, " ")
	s = markdownRe.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case strings.ContainsRune(".,!?';:-", r):
			b.WriteRune(r)
		}
		// Everything else, emoji included, is dropped.
	}

	return strings.TrimSpace(spacesRe.ReplaceAllString(b.String(), " "))
}

// stripEnclosed removes bracketed stage directions like "(laughs softly)".
// Unbalanced brackets pass through untouched.
func stripEnclosed(s string, open, closing rune) string {
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch r {
		case open:
			depth++
		case closing:
			if depth > 0 {
				depth--
				continue
			}
			b.WriteRune(r)
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	if depth != 0 {
		return s
	}
	return b.String()
}
