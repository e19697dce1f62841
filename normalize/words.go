package normalize

import (
	"sort"
	"strings"
)

// numberWords maps spelled-out Portuguese quantities to integers,
// covering the terms that actually occur in procurement clauses
// (warranty months, payment windows, appeal windows). Both accented
// and unaccented spellings are listed.
var numberWords = map[string]int{
	"um":        1,
	"uma":       1,
	"dois":      2,
	"duas":      2,
	"tres":      3,
	"três":      3,
	"quatro":    4,
	"cinco":     5,
	"seis":      6,
	"sete":      7,
	"oito":      8,
	"nove":      9,
	"dez":       10,
	"onze":      11,
	"doze":      12,
	"treze":     13,
	"quatorze":  14,
	"catorze":   14,
	"quinze":    15,
	"dezesseis": 16,
	"dezessete": 17,
	"dezoito":   18,
	"dezenove":  19,
	"vinte":     20,
	"trinta":    30,
	"quarenta":  40,
	"cinquenta": 50,
	"sessenta":  60,
	"setenta":   70,
	"oitenta":   80,
	"noventa":   90,
	"cem":       100,
	"cento":     100,
	"duzentos":  200,
	"trezentos": 300,

	// Compound terms common in legal text
	"vinte e quatro":               24,
	"quarenta e cinco":             45,
	"cento e vinte":                120,
	"cento e oitenta":              180,
	"trezentos e sessenta e cinco": 365,
}

// numberPhrases holds the table keys sorted longest-first so compound
// phrases win over their prefixes ("cento e vinte" before "cento").
var numberPhrases = func() []string {
	phrases := make([]string, 0, len(numberWords))
	for phrase := range numberWords {
		phrases = append(phrases, phrase)
	}
	sort.Slice(phrases, func(i, j int) bool {
		return len(phrases[i]) > len(phrases[j])
	})
	return phrases
}()

// wordToNumber resolves a spelled-out quantity. The fragment is matched
// against the full table entry after lowercasing and space collapsing.
func wordToNumber(fragment string) (int, bool) {
	normalized := strings.Join(strings.Fields(strings.ToLower(fragment)), " ")
	if normalized == "" {
		return 0, false
	}
	if n, ok := numberWords[normalized]; ok {
		return n, true
	}
	return 0, false
}

// findNumberWord searches a longer fragment for any table phrase,
// longest phrases first, matching on word boundaries.
func findNumberWord(fragment string) (int, bool) {
	normalized := " " + strings.Join(strings.Fields(strings.ToLower(fragment)), " ") + " "
	for _, phrase := range numberPhrases {
		if strings.Contains(normalized, " "+phrase+" ") {
			return numberWords[phrase], true
		}
	}
	return 0, false
}
