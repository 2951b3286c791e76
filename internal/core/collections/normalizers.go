package collections

import "strings"

// countryCodes maps country names to their ISO 3166-1 alpha-2 codes.
var countryCodes = map[string]string{
	"australia":      "AU",
	"austria":        "AT",
	"belgium":        "BE",
	"brazil":         "BR",
	"canada":         "CA",
	"china":          "CN",
	"denmark":        "DK",
	"finland":        "FI",
	"france":         "FR",
	"germany":        "DE",
	"india":          "IN",
	"ireland":        "IE",
	"italy":          "IT",
	"japan":          "JP",
	"mexico":         "MX",
	"netherlands":    "NL",
	"new zealand":    "NZ",
	"norway":         "NO",
	"poland":         "PL",
	"portugal":       "PT",
	"singapore":      "SG",
	"spain":          "ES",
	"sweden":         "SE",
	"switzerland":    "CH",
	"united kingdom": "GB",
	"united states":  "US",
}

// countryAliases are common alternate spellings.
var countryAliases = map[string]string{
	"uk":                       "GB",
	"great britain":            "GB",
	"usa":                      "US",
	"united states of america": "US",
	"holland":                  "NL",
}

// NormalizeCountry converts country names to their 2-letter codes.
// If the input is already a code or not recognized, returns it as-is
// (upper-cased when it looks like a code).
func NormalizeCountry(s string) string {
	s = strings.TrimSpace(s)
	sLower := strings.ToLower(s)

	if code, ok := countryCodes[sLower]; ok {
		return code
	}
	if code, ok := countryAliases[sLower]; ok {
		return code
	}

	sUpper := strings.ToUpper(s)
	for _, code := range countryCodes {
		if sUpper == code {
			return code
		}
	}

	return s
}

// NormalizeCurrency upper-cases an ISO 4217 code.
func NormalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeEmail lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CollapseSpaces trims s and reduces inner whitespace runs to one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
