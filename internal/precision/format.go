package precision

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// suffixLanguages place the currency symbol after the amount, separated by a space.
var suffixLanguages = map[string]bool{
	"de": true, "fr": true, "es": true, "it": true, "pt": true, "nl": true,
	"pl": true, "ru": true, "sv": true, "da": true, "fi": true, "cs": true,
	"nb": true, "no": true, "hu": true, "sk": true, "ro": true, "bg": true,
}

// Format renders value with locale-aware separators and the currency symbol
// in the locale's position. The value is rounded with p first; an unset
// policy prints up to MaxPlaces fraction digits.
//
// Unknown locales fall back to English.
func Format(value float64, symbol string, p Policy, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}

	var opts []number.Option
	if places, ok := p.N(); ok {
		opts = append(opts, number.Scale(places))
	} else {
		opts = append(opts, number.MaxFractionDigits(MaxPlaces))
	}

	amount := message.NewPrinter(tag).Sprint(number.Decimal(Round(value, p), opts...))
	if symbol == "" {
		return amount
	}

	base, _ := tag.Base()
	if suffixLanguages[base.String()] {
		return amount + " " + symbol
	}
	return symbol + amount
}
