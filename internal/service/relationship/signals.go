// Package relationship updates the per-conversation relationship model
// after each turn: classify signals from the latest user message, apply
// bounded axis deltas, and plan the next define-the-relationship step.
package relationship

import (
	"strings"

	"github.com/mireilabs/velora/backend/internal/model/relationship"
)

// keywordBuckets maps each signal to the phrases that evidence it.
// Matching is substring-based over the lowercased message; deterministic,
// no model call.
var keywordBuckets = map[string][]string{
	"support": {
		"i'm here for you", "proud of you", "you can do it", "i support",
		"that sounds hard", "i understand", "take your time", "no rush",
	},
	"affection": {
		"i like you", "i love", "miss you", "thinking of you", "adore",
		"you're amazing", "you make me", "can't stop thinking", "sweetheart",
		"cutie", "babe", "darling", "xoxo", "❤", "😘", "🥰",
	},
	"flirt": {
		"tease", "teasing", "flirt", "kiss", "cuddle", "date me", "sexy",
		"gorgeous", "beautiful", "cute", "wink", "😏", "😉",
	},
	"respect": {
		"thank you", "thanks", "appreciate", "you're right", "good point",
		"please", "respect", "i hear you",
	},
	"rude": {
		"shut up", "stupid", "idiot", "hate you", "ugly", "worthless",
		"whatever", "boring", "pathetic", "dumb",
	},
	"boundary_push": {
		"come on just", "don't be like that", "you owe me", "stop saying no",
		"i don't care what you want", "you have to", "send me", "right now or",
	},
	"apology": {
		"i'm sorry", "im sorry", "my bad", "apologize", "forgive me",
		"didn't mean to",
	},
	"commitment_talk": {
		"be my girlfriend", "be exclusive", "only you", "just us",
		"make it official", "be together", "my girlfriend", "relationship",
		"boyfriend",
	},
	"distancing": {
		"need space", "leave me alone", "this is too much", "slow down",
		"we should stop", "not comfortable", "back off", "too fast",
		"i'm done", "goodbye forever", "stop talking to me",
	},
}

var acceptExclusivePhrases = []string{
	"yes, let's be exclusive", "yes lets be exclusive", "i'll be exclusive",
	"only you, i promise", "deal, just us", "yes to exclusive",
}

var acceptGirlfriendPhrases = []string{
	"yes, be my girlfriend", "i want you to be my girlfriend",
	"you're my girlfriend now", "yes you're my girlfriend",
	"be my girlfriend", "will you be my girlfriend",
}

// ClassifySignals derives relationship signals from the latest user message
// only; prior context never participates. Deterministic by construction so
// the same message always yields the same signals.
func ClassifySignals(message string) relationship.Signals {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return relationship.Signals{}
	}

	hits := func(bucket string) float64 {
		count := 0
		for _, phrase := range keywordBuckets[bucket] {
			if strings.Contains(normalized, phrase) {
				count++
			}
		}
		switch {
		case count == 0:
			return 0
		case count == 1:
			return 0.6
		default:
			return 1.0
		}
	}

	sig := relationship.Signals{
		Support:        hits("support"),
		Affection:      hits("affection"),
		Flirt:          hits("flirt"),
		Respect:        hits("respect"),
		Rude:           hits("rude"),
		BoundaryPush:   hits("boundary_push"),
		Apology:        hits("apology"),
		CommitmentTalk: hits("commitment_talk"),
		Distancing:     hits("distancing"),
	}

	for _, phrase := range acceptExclusivePhrases {
		if strings.Contains(normalized, phrase) {
			sig.AcceptedExclusive = true
			break
		}
	}
	for _, phrase := range acceptGirlfriendPhrases {
		if strings.Contains(normalized, phrase) {
			sig.AcceptedGirlfriend = true
			break
		}
	}

	// Very short messages carry weak evidence; scale down so "hey" does
	// not move axes the way a paragraph does. Negative signals keep full
	// weight.
	scale := lengthScale(len(normalized))
	sig.Support *= scale
	sig.Affection *= scale
	sig.Flirt *= scale
	sig.Respect *= scale
	sig.Apology *= scale
	sig.CommitmentTalk *= scale

	return sig
}

func lengthScale(n int) float64 {
	switch {
	case n <= 4:
		return 0.15
	case n <= 12:
		return 0.35
	case n <= 30:
		return 0.6
	default:
		return 1.0
	}
}
