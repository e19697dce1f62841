// Package normalize converts free-form natural language fragments from
// procurement documents into canonical scalar values. Every function
// fails soft: when no pattern matches it reports ok=false instead of
// returning an error, because upstream extraction quality is unreliable.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// monthNames maps Portuguese month names, including unaccented
// spellings, to month numbers.
var monthNames = map[string]int{
	"janeiro":   1,
	"fevereiro": 2,
	"marco":     3,
	"março":     3,
	"abril":     4,
	"maio":      5,
	"junho":     6,
	"julho":     7,
	"agosto":    8,
	"setembro":  9,
	"outubro":   10,
	"novembro":  11,
	"dezembro":  12,
}

var (
	dateSlashPattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	dateDotPattern   = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	dateISOPattern   = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	dateLongPattern  = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+([\p{L}]+)\s+de\s+(\d{4})`)
)

// Date converts a date fragment to canonical YYYY-MM-DD form.
// Accepted inputs: DD/MM/YYYY, DD.MM.YYYY, "DD de <mês> de YYYY" and
// already canonical YYYY-MM-DD. Date is idempotent over its own output.
func Date(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if m := dateISOPattern.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return formatDate(year, month, day)
	}

	if m := dateSlashPattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return formatDate(year, month, day)
	}

	if m := dateDotPattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return formatDate(year, month, day)
	}

	if m := dateLongPattern.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			return "", false
		}
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		return formatDate(year, month, day)
	}

	return "", false
}

func formatDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1000 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

var (
	timeColonPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*h?`)
	timeHPattern     = regexp.MustCompile(`(?i)(\d{1,2})h(\d{2})`)
	timeHoursPattern = regexp.MustCompile(`(?i)(\d{1,2})\s*h(?:oras)?(?:\b|$)`)
)

// Time converts a time fragment to canonical zero-padded 24h HH:MM form.
// Accepted inputs: HH:MM, HH:MMh, HHhMM and "HH HORAS".
func Time(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if m := timeColonPattern.FindStringSubmatch(s); m != nil {
		return formatTime(m[1], m[2])
	}
	if m := timeHPattern.FindStringSubmatch(s); m != nil {
		return formatTime(m[1], m[2])
	}
	if m := timeHoursPattern.FindStringSubmatch(s); m != nil {
		return formatTime(m[1], "00")
	}

	return "", false
}

func formatTime(hourStr, minuteStr string) (string, bool) {
	hour, _ := strconv.Atoi(hourStr)
	minute, _ := strconv.Atoi(minuteStr)
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}
