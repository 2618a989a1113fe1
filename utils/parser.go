package utils

import (
	"regexp"
	"strconv"
	"strings"
)

// numberRegex finds the first number-like pattern: digits with optional
// thousands separators and a decimal part in either notation.
var numberRegex = regexp.MustCompile(`\d[\d.,]*\d|\d`)

// NormalizeNumber converts a number as printed on a supplier site ("12,5",
// "1.250,00", "1,250.00", "12.5 m") to a canonical decimal string. It
// returns false when the text holds no number.
//
// decimalComma names the site's decimal mark. It only matters for a number
// with a single separator followed by exactly three digits: "1.000" is one
// thousand on a decimal-comma site and one elsewhere.
func NormalizeNumber(text string, decimalComma bool) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	found := numberRegex.FindString(text)
	if found == "" {
		return "", false
	}

	lastComma := strings.LastIndex(found, ",")
	lastDot := strings.LastIndex(found, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		// "1.250,00": dots group thousands, comma is the decimal mark.
		found = strings.ReplaceAll(found, ".", "")
		found = strings.Replace(found, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		found = strings.ReplaceAll(found, ",", "")
	case lastComma >= 0:
		found = resolveMark(found, ",", decimalComma)
	case lastDot >= 0:
		found = resolveMark(found, ".", !decimalComma)
	}

	value, err := strconv.ParseFloat(found, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(value, 'f', -1, 64), true
}

// resolveMark rewrites a number that uses a single kind of separator. A
// repeated mark groups thousands. A lone mark is a decimal point unless the
// site uses the other mark and exactly three digits follow it.
func resolveMark(s, mark string, isDecimal bool) string {
	i := strings.Index(s, mark)
	if strings.Count(s, mark) > 1 || (!isDecimal && len(s)-i-1 == 3) {
		return strings.ReplaceAll(s, mark, "")
	}
	return strings.Replace(s, mark, ".", 1)
}
