// Package precision rounds and formats monetary values according to the
// number of decimal places configured for a currency.
//
// Rounding is performed on the decimal representation of a value, so
// 2.005 rounded to two places is 2.01 even though the nearest float64 is
// slightly below 2.005.
package precision

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// MaxPlaces is the largest number of decimal places a policy may carry.
const MaxPlaces = 8

// Policy is the number of decimal places values are rounded to.
// The zero Policy is unset and leaves values untouched.
type Policy struct {
	places int
	set    bool
}

// None is the unset policy.
var None = Policy{}

// Places returns a policy rounding to n decimal places.
func Places(n int) Policy {
	return Policy{places: n, set: true}
}

// FromPtr converts a nullable places value (as stored on a currency) to a Policy.
func FromPtr(n *int) Policy {
	if n == nil {
		return None
	}
	return Places(*n)
}

// Valid reports whether the policy is set and within 0..MaxPlaces.
func (p Policy) Valid() bool {
	return p.set && p.places >= 0 && p.places <= MaxPlaces
}

// N returns the number of places and whether the policy is usable.
func (p Policy) N() (int, bool) {
	return p.places, p.Valid()
}

func (p Policy) String() string {
	if !p.set {
		return "none"
	}
	return strconv.Itoa(p.places)
}

// Round rounds value half away from zero to the policy's places.
// Values are returned unchanged when the policy is unset or out of range.
func Round(value float64, p Policy) float64 {
	if !p.Valid() || math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	f, _ := decimal.NewFromFloat(value).Round(int32(p.places)).Float64()
	return f
}

// Equal reports whether a and b are equal after rounding both with p.
func Equal(a, b float64, p Policy) bool {
	if !p.Valid() {
		return a == b
	}
	return Round(a, p) == Round(b, p)
}

// Parse reads a user-entered number and rounds it with p.
// Surrounding whitespace and thousands separators are ignored.
func Parse(raw string, p Policy) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	// "1,234.50" and "1234,50" are both accepted; the last separator is decimal.
	if strings.Contains(s, ",") {
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if p.Valid() {
		d = d.Round(int32(p.places))
	}
	f, _ := d.Float64()
	return f, nil
}

// Default returns the standard number of places for an ISO 4217 currency code.
func Default(isoCode string) (Policy, error) {
	unit, err := currency.ParseISO(isoCode)
	if err != nil {
		return None, fmt.Errorf("unknown currency %q: %w", isoCode, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Places(scale), nil
}
