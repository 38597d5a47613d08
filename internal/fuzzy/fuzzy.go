// Package fuzzy ranks directory results and filters subscription lists with
// typo-tolerant string matching.
package fuzzy

import (
	"strings"
	"unicode"
)

// Distance returns the case-insensitive Levenshtein edit distance.
func Distance(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Similarity maps edit distance onto [0,1]; 1 means identical ignoring case.
func Similarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(Distance(a, b))/float64(longest)
}

// Matches reports whether query appears in text, tolerating typos. Exact
// substrings always match; otherwise each query word must be close to some
// word of the text, with shorter words held to a stricter threshold.
func Matches(text, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return false
	}

	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(query)
	if strings.Contains(textLower, queryLower) {
		return true
	}

	textWords := splitWords(textLower)
	for _, queryWord := range splitWords(queryLower) {
		if !wordMatches(textWords, queryWord) {
			return false
		}
	}
	return true
}

// Score ranks how well text matches query, higher is better. Prefix and
// substring hits outrank fuzzy word overlap.
func Score(text, query string) float64 {
	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(strings.TrimSpace(query))

	if queryLower == "" {
		return 0
	}
	if strings.HasPrefix(textLower, queryLower) {
		return 1
	}
	if strings.Contains(textLower, queryLower) {
		return 0.95
	}

	textWords := splitWords(textLower)
	queryWords := splitWords(queryLower)
	if len(queryWords) == 0 {
		return 0
	}

	var total float64
	for _, queryWord := range queryWords {
		var best float64
		for _, textWord := range textWords {
			if sim := Similarity(textWord, queryWord); sim > best {
				best = sim
			}
		}
		total += best
	}
	// Fuzzy overlap never outranks an exact substring.
	return total / float64(len(queryWords)) * 0.9
}

func wordMatches(textWords []string, queryWord string) bool {
	threshold := 0.65
	switch {
	case len(queryWord) <= 3:
		threshold = 0.8
	case len(queryWord) <= 5:
		threshold = 0.7
	}
	for _, textWord := range textWords {
		if Similarity(textWord, queryWord) >= threshold {
			return true
		}
	}
	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
