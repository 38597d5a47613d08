package fuzzy

import "testing"

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"rabbit", "rabitt", 2},
		{"Podcast", "podcast", 0},
	}
	for _, tc := range cases {
		if got := Distance(tc.a, tc.b); got != tc.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSimilarityBounds(t *testing.T) {
	if got := Similarity("", ""); got != 1 {
		t.Errorf("Similarity of empty strings = %v", got)
	}
	if got := Similarity("go", "go"); got != 1 {
		t.Errorf("identical strings = %v", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Errorf("disjoint strings = %v", got)
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		text, query string
		want        bool
	}{
		{"The Daily Tech Roundup", "tech", true},
		{"The Daily Tech Roundup", "DAILY", true},
		{"The Daily Tech Roundup", "dialy", true},
		{"The Daily Tech Roundup", "cooking", false},
		{"The Daily Tech Roundup", "", false},
		{"Go Time", "go", true},
		{"Go Time", "rust", false},
		{"Rabbit Hole Stories", "rabitt", true},
	}
	for _, tc := range cases {
		if got := Matches(tc.text, tc.query); got != tc.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tc.text, tc.query, got, tc.want)
		}
	}
}

func TestScoreOrdering(t *testing.T) {
	query := "daily tech"
	prefix := Score("Daily Tech Roundup", query)
	substring := Score("The Daily Tech Roundup", query)
	fuzzyHit := Score("Dialy Tach Show", query)
	miss := Score("Gardening Hour", query)

	if prefix != 1 {
		t.Errorf("prefix score = %v, want 1", prefix)
	}
	if substring != 0.95 {
		t.Errorf("substring score = %v, want 0.95", substring)
	}
	if !(substring > fuzzyHit && fuzzyHit > miss) {
		t.Errorf("ordering broken: substring=%v fuzzy=%v miss=%v", substring, fuzzyHit, miss)
	}
}
