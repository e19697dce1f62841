package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencySymbols   = strings.NewReplacer("R$", "", "US$", "", "U$", "", "$", "", " ", " ")
	monetaryCharsOnly = regexp.MustCompile(`^-?[0-9.,]+$`)
	brDecimalSuffix   = regexp.MustCompile(`,\d{2}$`)
)

// Monetary converts a currency fragment to a float value. Brazilian
// grouping ("1.234,56") is distinguished from US grouping ("1,234.56")
// by whether a comma is followed by exactly two trailing digits.
func Monetary(raw string) (float64, bool) {
	s := currencySymbols.Replace(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || !monetaryCharsOnly.MatchString(s) {
		return 0, false
	}

	if brDecimalSuffix.MatchString(s) {
		// Brazilian style: dots group thousands, comma is the decimal
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		// US or plain style: commas group thousands
		s = strings.ReplaceAll(s, ",", "")
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

var (
	percentDigitsPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
	percentWordsPattern  = regexp.MustCompile(`(?i)^\s*(.+?)\s+por\s+cento`)
)

// Percentage converts a percentage fragment to a decimal fraction
// (5% becomes 0.05). It accepts "<number>%" with comma or dot decimals
// and spelled-out "<número> por cento".
func Percentage(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	if m := percentDigitsPattern.FindStringSubmatch(s); m != nil {
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil {
			return 0, false
		}
		return value / 100, true
	}

	if m := percentWordsPattern.FindStringSubmatch(s); m != nil {
		quantity := strings.TrimSpace(m[1])
		if n, ok := wordToNumber(quantity); ok {
			return float64(n) / 100, true
		}
		if value, err := strconv.ParseFloat(strings.ReplaceAll(quantity, ",", "."), 64); err == nil {
			return value / 100, true
		}
	}

	return 0, false
}
