package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	vowelPattern     = regexp.MustCompile(`(?i)[aeiouáàâãéèêíìîóòôõúùûç]`)
	consonantPattern = regexp.MustCompile(`(?i)[bcdfghjklmnpqrstvwxyz]`)
)

// IsWordLike reports whether text looks like real speech rather than
// recognizer noise: long enough, mixing vowels and consonants, and either
// spanning several words or being a long single word.
func IsWordLike(text string, minSpeechLength int) bool {
	n := utf8.RuneCountInString(text)
	if n < minSpeechLength*2 {
		return false
	}
	return vowelPattern.MatchString(text) &&
		consonantPattern.MatchString(text) &&
		(strings.Contains(text, " ") || n > 8)
}

// HasNameIndicator reports whether text contains one of the
// self-identification phrases (case-insensitive).
func HasNameIndicator(text string, indicators []string) bool {
	lower := strings.ToLower(text)
	for _, ind := range indicators {
		if strings.Contains(lower, strings.ToLower(ind)) {
			return true
		}
	}
	return false
}
