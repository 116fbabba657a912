package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	yesRe        = regexp.MustCompile(`(はい|お願いします|そうです|大丈夫|いいですよ|よろしい)`)
	noRe         = regexp.MustCompile(`(いいえ|いえ|違う|やめ|キャンセル|不要|結構)`)
	greetingRe   = regexp.MustCompile(`(もしもし|聞こえますか|聞こえてますか)`)
	japaneseRe   = regexp.MustCompile(`[ぁ-んァ-ン一-龯]`)
	punctOnlyRe  = regexp.MustCompile(`^[\s\p{P}\p{S}]+$`)
	genmaiRe     = regexp.MustCompile(`(玄米|げんまい)`)
	seimaiRe     = regexp.MustCompile(`(精米|せいまい)`)
	dateWordRe   = regexp.MustCompile(`(明日|あした|tomorrow|きょう|今日|本日)`)
	dateSlashRe  = regexp.MustCompile(`\b\d{1,2}\s*[/-]\s*\d{1,2}\b`)
	dateMonthRe  = regexp.MustCompile(`\d{1,2}\s*月\s*\d{1,2}\s*日?`)
	dateDayRe    = regexp.MustCompile(`\b\d{1,2}\s*日`)
	addrWordRe   = regexp.MustCompile(`(都|道|府|県|市|区|町|村|丁目|番地|番|号)`)
	addrNumberRe = regexp.MustCompile(`\d{1,4}\s*[-ー−]?\s*\d{1,4}`)
)

func IsYes(s string) bool { return yesRe.MatchString(s) }
func IsNo(s string) bool { return noRe.MatchString(s) }
func IsGreeting(s string) bool { return greetingRe.MatchString(s) }
func HasJapanese(s string) bool { return japaneseRe.MatchString(s) }

// Milling values recognised in speech.
const (
	MillingBrown    = "玄米"
	MillingPolished = "精米"
)

// ExtractMilling returns the requested milling, brown rice taking precedence.
func ExtractMilling(s string) string {
	n := NormalizeRiceText(s)
	if genmaiRe.MatchString(n) {
		return MillingBrown
	}
	if seimaiRe.MatchString(n) {
		return MillingPolished
	}
	return ""
}

// IsDateLike reports relative day words or numeric day/month forms.
func IsDateLike(s string) bool {
	n := strings.ToLower(NFKC(s))
	return dateWordRe.MatchString(n) || dateSlashRe.MatchString(n) ||
		dateMonthRe.MatchString(n) || dateDayRe.MatchString(n)
}

// IsAddressLike reports text that plausibly names a delivery address.
func IsAddressLike(s string) bool {
	n := NFKC(s)
	if utf8.RuneCountInString(n) < 5 {
		return false
	}
	if addrWordRe.MatchString(n) {
		return true
	}
	return addrNumberRe.MatchString(n) && HasJapanese(n)
}

// ShouldIgnoreTranscript filters fillers and noise unless a slot is present.
func ShouldIgnoreTranscript(s string) bool {
	n := strings.TrimSpace(s)
	if n == "" {
		return true
	}
	if _, ok := ExtractWeightKg(n); ok {
		return false
	}
	if _, ok := ExtractRiceBrand(n); ok {
		return false
	}
	if punctOnlyRe.MatchString(n) {
		return true
	}
	length := utf8.RuneCountInString(n)
	if length < 2 {
		return true
	}
	return !HasJapanese(n) && length < 4
}
