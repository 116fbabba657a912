package extract

import (
	"math"
	"strings"
)

// Confidence tells whether a brand was found literally or by edit distance.
type Confidence string

const (
	ConfidenceExact Confidence = "exact"
	ConfidenceFuzzy Confidence = "fuzzy"
)

// Brand is a recognised canonical rice brand.
type Brand struct {
	Name       string
	Confidence Confidence
}

type brandEntry struct {
	canonical string
	variants  []string
}

// Iteration order decides ties between equally distant fuzzy candidates.
var brandDictionary = []brandEntry{
	{"コシヒカリ", []string{"こしひかり", "こし光", "こしひkari", "越光", "越ひかり", "腰光", "こしひ", "こし"}},
	{"あきたこまち", []string{"あきたこまち", "秋田こまち", "あきた小町", "秋田小町", "あきたこま", "あきた"}},
	{"ひとめぼれ", []string{"ひとめぼれ", "一目ぼれ", "一目惚れ", "ひとめ"}},
	{"ゆめぴりか", []string{"ゆめぴりか", "夢ぴりか", "ゆめぴ"}},
	{"ななつぼし", []string{"ななつぼし", "七つ星", "ななつ"}},
}

// Keys shorter than this match literally only.
const minFuzzyKeyLen = 3

// Brands lists the canonical brand names in dictionary order.
func Brands() []string {
	out := make([]string, len(brandDictionary))
	for i, e := range brandDictionary {
		out[i] = e.canonical
	}
	return out
}

// ExtractRiceBrand finds the brand mentioned in text. The longest literal
// variant wins; otherwise the closest fuzzy variant within tolerance.
func ExtractRiceBrand(text string) (Brand, bool) {
	normalized := NormalizeBrandText(text)
	if normalized == "" {
		return Brand{}, false
	}
	var (
		best         string
		bestLen      int
		bestDistance = math.MaxInt
		confidence   = ConfidenceExact
	)
	for _, entry := range brandDictionary {
		for _, variant := range entry.variants {
			key := NormalizeBrandText(variant)
			if key == "" {
				continue
			}
			keyLen := len([]rune(key))
			if strings.Contains(normalized, key) {
				if bestDistance > 0 || keyLen > bestLen {
					best, bestLen, bestDistance, confidence = entry.canonical, keyLen, 0, ConfidenceExact
				}
				continue
			}
			if keyLen < minFuzzyKeyLen {
				continue
			}
			d := bestDistanceInText([]rune(normalized), []rune(key))
			if d > 0 && fuzzyAcceptable(d, keyLen) && d < bestDistance {
				best, bestLen, bestDistance, confidence = entry.canonical, keyLen, d, ConfidenceFuzzy
			}
		}
	}
	if best == "" {
		return Brand{}, false
	}
	return Brand{Name: best, Confidence: confidence}, true
}

// bestDistanceInText slides a key-sized window over text and returns the smallest edit distance.
func bestDistanceInText(text, key []rune) int {
	if len(text) <= len(key) {
		return Levenshtein(text, key)
	}
	best := math.MaxInt
	for i := 0; i+len(key) <= len(text); i++ {
		if d := Levenshtein(text[i:i+len(key)], key); d < best {
			best = d
		}
		if best <= 1 {
			break
		}
	}
	return best
}

func fuzzyAcceptable(distance, keyLen int) bool {
	switch {
	case distance == 0:
		return true
	case keyLen <= 3:
		return distance <= 1
	case keyLen <= 5:
		return distance <= 2
	case keyLen <= 8:
		return distance <= 3
	default:
		return distance <= 4
	}
}

// Levenshtein is the plain edit distance over runes.
func Levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
