// Package tokenizer provides text normalisation for the POI search engine.
// It NFKC-normalises and lower-cases input, replaces punctuation (except
// hyphens) with whitespace, splits on whitespace and removes short tokens and
// stop-words. Documents and queries use different stop-word policies.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Policy is a named stop-word set applied after splitting.
type Policy struct {
	Name      string
	stopWords map[string]struct{}
}

// Strict is applied when indexing documents. Besides Indonesian function
// words it removes address boilerplate that appears in nearly every record.
var Strict = newPolicy("strict",
	"yang", "di", "dan", "ke", "dari", "ini", "itu", "dengan", "untuk",
	"pada", "adalah", "sebagai", "dalam", "tidak", "akan", "juga", "atau",
	"ada", "mereka", "sudah", "saya", "seperti", "dapat", "jika", "hanya",
	"oleh", "saat", "harus", "antara", "setelah", "belum", "atas", "bawah",
	"rt", "rw", "no", "jl", "jalan", "kel", "kota", "kec",
)

// Permissive is applied to queries. Queries are short, so only the most
// common function words are dropped.
var Permissive = newPolicy("permissive",
	"yang", "di", "dan", "ke", "dari", "ini", "itu", "dengan",
)

const minTokenLen = 2

func newPolicy(name string, words ...string) Policy {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return Policy{Name: name, stopWords: set}
}

// IsStopWord reports whether term is removed under the policy.
func (p Policy) IsStopWord(term string) bool {
	_, ok := p.stopWords[term]
	return ok
}

// Size returns the number of stop-words in the policy.
func (p Policy) Size() int {
	return len(p.stopWords)
}

// Clean lower-cases text and replaces everything except letters, digits,
// underscores, whitespace and hyphens with a space. Runs of whitespace are
// collapsed and the result is trimmed.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(norm.NFKC.String(text))
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			return r
		case r == '_', r == '-':
			return r
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// Normalize cleans text and returns its tokens with short tokens and the
// policy's stop-words removed. Empty input yields an empty slice.
func Normalize(text string, p Policy) []string {
	words := strings.Fields(Clean(text))
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < minTokenLen {
			continue
		}
		if p.IsStopWord(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Document tokenizes record text with the strict policy.
func Document(text string) []string {
	return Normalize(text, Strict)
}

// Query tokenizes query text with the permissive policy.
func Query(text string) []string {
	return Normalize(text, Permissive)
}

// DocumentText joins the non-empty text fields of a record into the single
// string that gets indexed.
func DocumentText(fields ...string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
