package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	numericWeightRe = regexp.MustCompile(`(\d+(?:\.\d+)?)?(?:kg|ｋｇ|きろ|キロ|公斤)`)
	kanjiWeightRe   = regexp.MustCompile(`([一二三四五六七八九十零]+)(?:kg|ｋｇ|きろ|キロ|公斤)`)
	looseDigitRe    = regexp.MustCompile(`(?:^|[^0-9])([0-9]{1,2})(?:$|[^0-9])`)
	looseKanjiRe    = regexp.MustCompile(`([一二三四五六七八九十零]{1,3})`)
	catalogWeightRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:kg|キロ)`)
)

var kanjiDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9, '十': 10,
}

// DefaultWeights are offered when the catalog names carry no weights.
var DefaultWeights = []int{5, 10, 20}

// ParseKanjiNumber reads 一..十 numerals with 十 as a multiplier. Zero and
// unknown characters are rejected.
func ParseKanjiNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	total, current := 0, 0
	for _, r := range s {
		if r == '十' {
			if current == 0 {
				current = 1
			}
			total += current * 10
			current = 0
			continue
		}
		v, ok := kanjiDigits[r]
		if !ok {
			return 0, false
		}
		current += v
	}
	total += current
	if total == 0 {
		return 0, false
	}
	return total, true
}

// ExtractWeightKg returns the number spoken right before a weight unit.
func ExtractWeightKg(text string) (float64, bool) {
	compact := whitespaceRe.ReplaceAllString(strings.ToLower(NFKC(text)), "")
	if m := numericWeightRe.FindStringSubmatch(compact); m != nil && m[1] != "" {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	if m := kanjiWeightRe.FindStringSubmatch(NormalizeRiceText(text)); m != nil {
		if v, ok := ParseKanjiNumber(m[1]); ok {
			return float64(v), true
		}
	}
	return 0, false
}

// ExtractLooseWeightKg accepts a bare one or two digit number or a short kanji
// numeral. Only meaningful while a weight is being asked for.
func ExtractLooseWeightKg(text string) (float64, bool) {
	normalized := NormalizeRiceText(text)
	if m := looseDigitRe.FindStringSubmatch(normalized); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return float64(v), true
		}
	}
	if m := looseKanjiRe.FindStringSubmatch(normalized); m != nil {
		if v, ok := ParseKanjiNumber(m[1]); ok {
			return float64(v), true
		}
	}
	return 0, false
}

// CatalogWeightKg scrapes a weight token such as "5kg" from a product name.
func CatalogWeightKg(name string) (float64, bool) {
	m := catalogWeightRe.FindStringSubmatch(NFKC(name))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ValidWeightKg bounds weights the dialogue accepts.
func ValidWeightKg(w float64) bool { return w >= 1 && w <= 50 }

// WeightOptions collects integral, valid weights from product names, sorted
// and deduplicated. DefaultWeights is returned when none are found.
func WeightOptions(names []string) []int {
	seen := map[int]bool{}
	var out []int
	for _, n := range names {
		w, ok := CatalogWeightKg(n)
		if !ok || w != float64(int(w)) || !ValidWeightKg(w) {
			continue
		}
		if !seen[int(w)] {
			seen[int(w)] = true
			out = append(out, int(w))
		}
	}
	if len(out) == 0 {
		return append([]int(nil), DefaultWeights...)
	}
	sort.Ints(out)
	return out
}
