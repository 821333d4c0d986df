// Package tokenizer turns page text and queries into index terms. It
// case-folds text (Turkish dotted and dotless i both fold to plain i), splits
// on non-alphanumeric boundaries, removes stop-words and applies a simple
// suffix-based stemmer. The same
// function must be used at index and query time.
package tokenizer

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
	// Turkish
	"ve": {}, "bir": {}, "bu": {}, "da": {}, "de": {}, "için": {},
	"ile": {}, "çok": {}, "gibi": {}, "daha": {}, "olan": {}, "ama": {},
	"ki": {}, "mi": {}, "ne": {}, "şu": {}, "veya": {},
}

// cases.Caser is stateful; each goroutine takes its own from the pool.
var lowerPool = sync.Pool{
	New: func() any {
		c := cases.Lower(language.Und)
		return &c
	},
}

// dottedI maps the Turkish i variants onto i so "FIRE", "fire" and "fıre"
// share a term and İZMİR does not pick up a combining dot.
var dottedI = strings.NewReplacer("İ", "i", "ı", "i")

func lower(text string) string {
	c := lowerPool.Get().(*cases.Caser)
	defer lowerPool.Put(c)
	return c.String(dottedI.Replace(text))
}

// Terms returns the normalised terms of text in order. Repeated words yield
// repeated terms.
func Terms(text string) []string {
	words := strings.FieldsFunc(lower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		if stemmed := stem(word); stemmed != "" {
			terms = append(terms, stemmed)
		}
	}
	return terms
}

// Frequencies counts occurrences per term.
func Frequencies(terms []string) map[string]int {
	freq := make(map[string]int, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	return freq
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem strips the first matching suffix when the remaining stem is long
// enough.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
