package store

import (
	"strings"
	"unicode"
)

// isCJK reports whether r belongs to a script written without spaces.
func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Tokenize splits text into lowercase terms. Letters and digits form words.
// For Chinese every CJK rune becomes its own term, so that unicode61 can
// match substrings of unsegmented sentences.
func Tokenize(text, language string) []string {
	var (
		tokens []string
		word   strings.Builder
	)

	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	splitCJK := language != LanguageEnglish
	for _, r := range text {
		switch {
		case splitCJK && isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		case isWordRune(r):
			word.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// isWordRune reports whether r can be part of a term.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// ftsMatchExpression builds an FTS5 MATCH expression that requires every
// term of text. Each run of word characters becomes one quoted phrase, so a
// CJK run split into single runes still has to appear contiguously.
// Returns "" when text has no tokens.
func ftsMatchExpression(text, language string) string {
	segments := strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })

	seen := make(map[string]struct{}, len(segments))
	phrases := make([]string, 0, len(segments))
	for _, seg := range segments {
		tokens := Tokenize(seg, language)
		if len(tokens) == 0 {
			continue
		}
		phrase := `"` + strings.ReplaceAll(strings.Join(tokens, " "), `"`, `""`) + `"`
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		phrases = append(phrases, phrase)
	}
	return strings.Join(phrases, " AND ")
}
