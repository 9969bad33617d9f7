// Package names converts URL path segments and registry labels into the
// display and namespace forms used by the dispatcher.
package names

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultModule is the module served when a path carries no module segment.
const DefaultModule = "Dashboard"

// Normalize turns "billing-reports" or "billing reports" into "Billing Reports".
// Only the first rune of each word is title-cased; the rest is kept byte for
// byte. Blank input yields DefaultModule.
func Normalize(s string) string {
	words := split(s)
	if len(words) == 0 {
		return DefaultModule
	}
	caser := cases.Title(language.Und, cases.NoLower)
	for i, w := range words {
		_, size := utf8.DecodeRuneInString(w)
		words[i] = caser.String(w[:size]) + w[size:]
	}
	return strings.Join(words, " ")
}

// Studly is Normalize without separators: "billing-reports" -> "BillingReports".
func Studly(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "")
}

// Dashed renders a normalized name back into its URL form: "Billing Reports" -> "billing-reports".
func Dashed(s string) string {
	words := split(s)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, "-")
}

func split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || unicode.IsSpace(r)
	})
}
