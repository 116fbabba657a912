package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	punctRe        = regexp.MustCompile(`[・、。.,/\\]`)
	alnumRe        = regexp.MustCompile(`[0-9a-z]`)
	unitRe         = regexp.MustCompile(`(kg|ｋｇ|きろ|キロ|公斤)`)
	kanjiDigitRe   = regexp.MustCompile(`[一二三四五六七八九十零]`)
	politeSuffixRe = regexp.MustCompile(`(です|ください|おねがいします|お願いします|にしてください|でお願いします)`)
	nonWordRe      = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// NFKC applies Unicode compatibility normalisation.
func NFKC(s string) string { return norm.NFKC.String(s) }

// NormalizeText is the light normalisation applied to every transcript.
func NormalizeText(s string) string { return strings.TrimSpace(NFKC(s)) }

// toHiragana folds katakana (U+30A1..U+30F6) onto hiragana.
func toHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x30a1 && r <= 0x30f6 {
			return r - 0x60
		}
		return r
	}, s)
}

// NormalizeRiceText is the form all brand and weight matching runs on.
func NormalizeRiceText(s string) string {
	out := strings.ToLower(NFKC(s))
	out = whitespaceRe.ReplaceAllString(out, "")
	out = punctRe.ReplaceAllString(out, "")
	out = toHiragana(out)
	return strings.ReplaceAll(out, "ー", "")
}

// NormalizeBrandText strips quantities and polite endings so only the brand remains.
func NormalizeBrandText(s string) string {
	out := NormalizeRiceText(s)
	out = alnumRe.ReplaceAllString(out, "")
	out = unitRe.ReplaceAllString(out, "")
	out = kanjiDigitRe.ReplaceAllString(out, "")
	out = politeSuffixRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// NormalizeForCompare keeps letters and digits only; used for echo comparison.
func NormalizeForCompare(s string) string {
	return nonWordRe.ReplaceAllString(strings.ToLower(NFKC(s)), "")
}
