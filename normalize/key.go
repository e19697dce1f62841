package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// accentFolder maps the accented characters that occur in procurement
// text to their base letters, so slugs and comparisons are stable
// across accented and unaccented spellings.
var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
	"Á", "A", "À", "A", "Â", "A", "Ã", "A",
	"É", "E", "Ê", "E",
	"Í", "I",
	"Ó", "O", "Ô", "O", "Õ", "O",
	"Ú", "U", "Ü", "U",
	"Ç", "C",
)

// Slug upper-cases a fragment, folds accents and collapses every
// non-alphanumeric run into a single underscore. Used as the default
// normalized value for entity types without a dedicated normalizer.
func Slug(raw string) string {
	folded := accentFolder.Replace(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(folded))
	lastUnderscore := true
	for _, r := range strings.ToUpper(folded) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// Comparable strips all non-alphanumeric characters and upper-cases the
// remainder. Two normalized values whose comparable forms are equal are
// treated as the same fact by the merge tolerance policy.
func Comparable(value string) string {
	folded := accentFolder.Replace(value)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToUpper(folded) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DeduplicationKey derives a short content-addressed grouping key from
// the entity type, normalized value and optional context. The
// concatenation is order sensitive. This is a legacy/opaque grouping
// mechanism; the primary identity is the extractor-supplied semantic key.
func DeduplicationKey(entityType, normalizedValue, context string) string {
	sum := sha256.Sum256([]byte(entityType + "|" + normalizedValue + "|" + context))
	return hex.EncodeToString(sum[:])[:16]
}

// ValidSemanticKey reports whether an extractor-supplied semantic key
// is usable as an identity.
func ValidSemanticKey(key string) bool {
	return strings.TrimSpace(key) != ""
}
