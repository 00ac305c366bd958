// Package catalog holds the closed enumerations the calculator works over:
// trading countries, goods categories and trade conditions.
//
// All three sets are fixed at compile time. The zero value of each type means
// "not selected" and is never a member of its set.
package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownCountry is returned when a value is outside the country set.
	ErrUnknownCountry = errors.New("unknown country")
	// ErrUnknownCategory is returned when a value is outside the category set.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrUnknownCondition is returned when a value is outside the condition set.
	ErrUnknownCondition = errors.New("unknown trade condition")
)

// CountryID identifies a trading country.
type CountryID int

const (
	USA CountryID = iota + 1
	China
	India
	Germany
	Japan
	SouthKorea
	Vietnam
	Malaysia
	UK
	France
)

var countryNames = map[CountryID]string{
	USA:        "USA",
	China:      "China",
	India:      "India",
	Germany:    "Germany",
	Japan:      "Japan",
	SouthKorea: "South Korea",
	Vietnam:    "Vietnam",
	Malaysia:   "Malaysia",
	UK:         "UK",
	France:     "France",
}

var countryFlags = map[CountryID]string{
	USA:        "🇺🇸",
	China:      "🇨🇳",
	India:      "🇮🇳",
	Germany:    "🇩🇪",
	Japan:      "🇯🇵",
	SouthKorea: "🇰🇷",
	Vietnam:    "🇻🇳",
	Malaysia:   "🇲🇾",
	UK:         "🇬🇧",
	France:     "🇫🇷",
}

// Valid reports whether c is a member of the country set.
func (c CountryID) Valid() bool {
	_, ok := countryNames[c]
	return ok
}

// String returns the country name, or a numeric placeholder for invalid ids.
func (c CountryID) String() string {
	if name, ok := countryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Country(%d)", int(c))
}

// Label returns the flag-prefixed display label used in selects.
func (c CountryID) Label() string {
	if !c.Valid() {
		return c.String()
	}
	return countryFlags[c] + " " + countryNames[c]
}

// Countries returns every country in id order.
func Countries() []CountryID {
	out := make([]CountryID, 0, len(countryNames))
	for c := USA; c <= France; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCountry parses a decimal country id. Empty input yields the zero value
// and no error so callers can treat it as "not selected".
func ParseCountry(raw string) (CountryID, error) {
	n, empty, err := parseID(raw)
	if empty {
		return 0, nil
	}
	if err != nil || !CountryID(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCountry, raw)
	}
	return CountryID(n), nil
}

// CategoryID identifies a goods category.
type CategoryID int

const (
	Electronics CategoryID = iota + 1
	Steel
	Agriculture
	Automobiles
	Textiles
	Chemicals
	Machinery
	Pharmaceuticals
)

var categoryNames = map[CategoryID]string{
	Electronics:     "Electronics",
	Steel:           "Steel",
	Agriculture:     "Agriculture",
	Automobiles:     "Automobiles",
	Textiles:        "Textiles",
	Chemicals:       "Chemicals",
	Machinery:       "Machinery",
	Pharmaceuticals: "Pharmaceuticals",
}

// Valid reports whether c is a member of the category set.
func (c CategoryID) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c CategoryID) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Categories returns every category in id order.
func Categories() []CategoryID {
	out := make([]CategoryID, 0, len(categoryNames))
	for c := Electronics; c <= Pharmaceuticals; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory parses a decimal category id; empty input is "not selected".
func ParseCategory(raw string) (CategoryID, error) {
	n, empty, err := parseID(raw)
	if empty {
		return 0, nil
	}
	if err != nil || !CategoryID(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
	return CategoryID(n), nil
}

// Condition is the trade condition applied on top of the base tariff.
type Condition int

const (
	Normal Condition = iota + 1
	Preferential
	Penalty
)

// Valid reports whether c is one of Normal, Preferential or Penalty.
func (c Condition) Valid() bool {
	return c >= Normal && c <= Penalty
}

func (c Condition) String() string {
	switch c {
	case Normal:
		return "Normal"
	case Preferential:
		return "Preferential"
	case Penalty:
		return "Penalty"
	default:
		return fmt.Sprintf("Condition(%d)", int(c))
	}
}

// Label returns the selector label including the tariff adjustment.
func (c Condition) Label() string {
	switch c {
	case Preferential:
		return "Preferential −5%"
	case Penalty:
		return "Penalty +10%"
	default:
		return c.String()
	}
}

// Conditions returns every condition in id order.
func Conditions() []Condition {
	return []Condition{Normal, Preferential, Penalty}
}

// ParseCondition parses a decimal condition id. Empty input means Normal.
func ParseCondition(raw string) (Condition, error) {
	n, empty, err := parseID(raw)
	if empty {
		return Normal, nil
	}
	if err != nil || !Condition(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCondition, raw)
	}
	return Condition(n), nil
}

func parseID(raw string) (n int, empty bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true, nil
	}
	n, err = strconv.Atoi(raw)
	return n, false, err
}
