package language

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is used when no fallback locale is configured.
const DefaultLocale = "en-US"

// Normalize reduces the language signals of a request to one canonical
// locale tag of the form xx-YY.
//
// A detector guess is matched against the caller's candidates by base
// language, so a bare "af" guess with candidates ["af-ZA", "en-ZA"] yields
// "af-ZA". An unmatched guess is used on its own, expanded to its most likely
// region. Without a guess the first usable candidate wins, then fallback.
func Normalize(detected string, candidates []string, fallback string) string {
	if guess, ok := Canonicalize(detected); ok {
		base := Base(guess)
		for _, c := range candidates {
			if cand, ok := Canonicalize(c); ok && Base(cand) == base {
				return cand
			}
		}
		return guess
	}

	for _, c := range candidates {
		if cand, ok := Canonicalize(c); ok {
			return cand
		}
	}

	if fb, ok := Canonicalize(fallback); ok {
		return fb
	}
	return DefaultLocale
}

// Canonicalize parses a language code, locale tag or English language name
// ("Afrikaans") and returns it as xx-YY. Tags without a region get the
// region CLDR considers most likely for the language.
func Canonicalize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if code, ok := CodeForName(s); ok {
		s = code
	}

	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf != language.Exact {
		return "", false
	}
	region, conf := tag.Region()
	if conf == language.No || region.String() == "ZZ" {
		return base.String(), true
	}
	return base.String() + "-" + region.String(), true
}

// Base returns the lower-case language subtag of a canonical locale.
func Base(locale string) string {
	if i := strings.IndexByte(locale, '-'); i >= 0 {
		return strings.ToLower(locale[:i])
	}
	return strings.ToLower(locale)
}
