package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

type periodUnit int

const (
	unitNone periodUnit = iota
	unitDays
	unitMonths
	unitYears
)

var digitsPattern = regexp.MustCompile(`\d+`)

// detectUnit finds the period unit word in a fragment.
func detectUnit(s string) periodUnit {
	switch {
	case strings.Contains(s, "ano"):
		return unitYears
	case strings.Contains(s, "mes"), strings.Contains(s, "mês"), strings.Contains(s, "meses"):
		return unitMonths
	case strings.Contains(s, "dia"):
		return unitDays
	}
	return unitNone
}

// quantityOf resolves the quantity in a fragment, checking the
// number-word table before falling back to digit parsing. Legal text
// often spells both, e.g. "12 (doze) meses"; digits and words agree in
// practice and the word table is authoritative when both appear.
func quantityOf(s string) (int, bool) {
	cleaned := strings.NewReplacer("(", " ", ")", " ", ",", " ", ";", " ").Replace(s)
	if n, ok := findNumberWord(cleaned); ok {
		return n, true
	}
	if m := digitsPattern.FindString(s); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

// WarrantyPeriod resolves a warranty duration fragment to a canonical
// month count. Day counts are approximated with dayMonthDivisor days
// per month (30 by default policy).
func WarrantyPeriod(raw string, dayMonthDivisor int) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	if dayMonthDivisor <= 0 {
		dayMonthDivisor = 30
	}

	unit := detectUnit(s)
	if unit == unitNone {
		return 0, false
	}

	quantity, ok := quantityOf(s)
	if !ok || quantity <= 0 {
		return 0, false
	}

	switch unit {
	case unitYears:
		return quantity * 12, true
	case unitMonths:
		return quantity, true
	case unitDays:
		months := quantity / dayMonthDivisor
		if months < 1 {
			months = 1
		}
		return months, true
	}
	return 0, false
}

// DaysPeriod resolves a deadline duration fragment to a day count and
// whether the days are business days ("dias úteis") rather than
// calendar days ("dias corridos").
func DaysPeriod(raw string) (days int, isBusinessDays bool, ok bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false, false
	}

	if detectUnit(s) != unitDays {
		return 0, false, false
	}

	quantity, found := quantityOf(s)
	if !found || quantity <= 0 {
		return 0, false, false
	}

	isBusinessDays = strings.Contains(s, "util") || strings.Contains(s, "útil") ||
		strings.Contains(s, "uteis") || strings.Contains(s, "úteis")

	return quantity, isBusinessDays, true
}
