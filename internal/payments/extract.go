package payments

import (
	"regexp"
	"strings"
)

// ConsentVerdict classifies a customer utterance against the literal
// yes/no question asked by the confirmation dialogue.
type ConsentVerdict int

const (
	ConsentAmbiguous ConsentVerdict = iota
	ConsentAffirmative
	ConsentNegative
)

var (
	affirmativeRe = regexp.MustCompile(`\b(yes|yeah|yep|yup|correct|right|sure|okay|ok|absolutely|definitely|confirm|confirmed|go ahead|sounds good|that's right|please do)\b`)
	negativeRe    = regexp.MustCompile(`\b(no|nope|nah|cancel|stop|wait|don't|do not|not now|never ?mind|wrong|hold on)\b`)

	targetNumberRe = regexp.MustCompile(`\b(\d{6})\b`)
	digitGapRe     = regexp.MustCompile(`(\d)[\s-]+(\d)`)
)

// ClassifyConsent pattern-matches an utterance. A turn containing both a
// yes and a no signal stays ambiguous; the dialogue asks again rather
// than guessing.
func ClassifyConsent(utterance string) ConsentVerdict {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	if normalized == "" {
		return ConsentAmbiguous
	}

	affirmative := affirmativeRe.MatchString(normalized)
	negative := negativeRe.MatchString(normalized)

	switch {
	case affirmative && negative:
		return ConsentAmbiguous
	case negative:
		return ConsentNegative
	case affirmative:
		return ConsentAffirmative
	default:
		return ConsentAmbiguous
	}
}

// ClassifyRecentConsent walks utterances newest-first and returns the
// first clear verdict.
func ClassifyRecentConsent(utterances []string) ConsentVerdict {
	for i := len(utterances) - 1; i >= 0; i-- {
		if verdict := ClassifyConsent(utterances[i]); verdict != ConsentAmbiguous {
			return verdict
		}
	}
	return ConsentAmbiguous
}

// ExtractTargetNumber scans utterances newest-first for a six digit
// speakable number. Callers read the digits out one at a time, so gaps
// between digits are collapsed before matching.
func ExtractTargetNumber(utterances []string) string {
	for i := len(utterances) - 1; i >= 0; i-- {
		if match := targetNumberRe.FindString(condenseDigits(utterances[i])); match != "" {
			return match
		}
	}
	return ""
}

func condenseDigits(s string) string {
	for {
		next := digitGapRe.ReplaceAllString(s, "$1$2")
		if next == s {
			return next
		}
		s = next
	}
}
