package form

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds compatibility characters (NBSP, full-width forms),
// lower-cases and collapses whitespace so option labels compare reliably.
func NormalizeText(s string) string {
	folded := norm.NFKC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
