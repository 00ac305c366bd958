// Package form validates the calculator form. Validation is pure: it reads a
// State and produces an Errors map, and never performs I/O.
package form

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
)

// Field names a form input.
type Field string

const (
	Exporter      Field = "exporter"
	Importer      Field = "importer"
	Category      Field = "category"
	DeclaredValue Field = "declared_value"
	Condition     Field = "condition"
)

// Fields lists every field in display order.
func Fields() []Field {
	return []Field{Exporter, Importer, Category, DeclaredValue, Condition}
}

// ParseField maps a wire name to a Field.
func ParseField(name string) (Field, error) {
	for _, f := range Fields() {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", name)
}

const (
	MsgExporterRequired = "Please select an exporter."
	MsgImporterRequired = "Please select an importer."
	MsgCategoryRequired = "Please select a category."
	MsgDeclaredValue    = "Enter a positive integer value."
	MsgSameCountry      = "Importer cannot be the same as exporter."
)

// State is the calculator form. Zero country and category values mean empty.
type State struct {
	Exporter  catalog.CountryID  `json:"exporter"`
	Importer  catalog.CountryID  `json:"importer"`
	Category  catalog.CategoryID `json:"category"`
	Declared  string             `json:"declared_value"`
	Condition catalog.Condition  `json:"condition"`
	// Prefilled marks an exporter taken from the home country. Display only.
	Prefilled bool `json:"prefilled"`
}

// NewState returns an empty form with the default condition.
func NewState() State {
	return State{Condition: catalog.Normal}
}

// Set parses raw input for field f and stores it. Editing the exporter clears
// the prefilled marker.
func (s *State) Set(f Field, raw string) error {
	switch f {
	case Exporter:
		c, err := catalog.ParseCountry(raw)
		if err != nil {
			return err
		}
		s.Exporter = c
		s.Prefilled = false
	case Importer:
		c, err := catalog.ParseCountry(raw)
		if err != nil {
			return err
		}
		s.Importer = c
	case Category:
		c, err := catalog.ParseCategory(raw)
		if err != nil {
			return err
		}
		s.Category = c
	case DeclaredValue:
		s.Declared = raw
	case Condition:
		c, err := catalog.ParseCondition(raw)
		if err != nil {
			return err
		}
		s.Condition = c
	default:
		return fmt.Errorf("unknown field %q", f)
	}
	return nil
}

// Value returns the raw display value of field f.
func (s State) Value(f Field) string {
	switch f {
	case Exporter:
		return idString(int(s.Exporter))
	case Importer:
		return idString(int(s.Importer))
	case Category:
		return idString(int(s.Category))
	case DeclaredValue:
		return s.Declared
	case Condition:
		return idString(int(s.Condition))
	}
	return ""
}

func idString(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// DeclaredAmount parses the declared value. It reports false unless the text is
// an integer of at least 1.
func (s State) DeclaredAmount() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s.Declared), 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Request builds the outbound calculation request. It fails unless the state
// validates.
func (s State) Request() (calculator.Request, error) {
	if errs := Validate(s); !errs.Empty() {
		return calculator.Request{}, fmt.Errorf("form has %d invalid fields", len(errs))
	}
	amount, _ := s.DeclaredAmount()
	cond := s.Condition
	if !cond.Valid() {
		cond = catalog.Normal
	}
	return calculator.Request{
		Exporter:      int(s.Exporter),
		Importer:      int(s.Importer),
		Category:      int(s.Category),
		DeclaredValue: amount,
		Condition:     int(cond),
	}, nil
}

// FieldError marks a field as invalid. Flagged without a message highlights
// the field without repeating text shown elsewhere.
type FieldError struct {
	Flagged bool   `json:"flagged"`
	Message string `json:"message,omitempty"`
}

var (
	importerConflict = FieldError{Flagged: true, Message: MsgSameCountry}
	exporterConflict = FieldError{Flagged: true}
)

// Errors maps fields to their errors. Absent fields are valid.
type Errors map[Field]FieldError

// Empty reports whether no field is in error.
func (e Errors) Empty() bool { return len(e) == 0 }

// Flagged reports whether f is in error.
func (e Errors) Flagged(f Field) bool { return e[f].Flagged }

// Message returns the text shown under f, if any.
func (e Errors) Message(f Field) string { return e[f].Message }

// Clone returns an independent copy.
func (e Errors) Clone() Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func conflict(s State) bool {
	return s.Exporter != 0 && s.Importer != 0 && s.Exporter == s.Importer
}

// Validate recomputes every rule from scratch.
func Validate(s State) Errors {
	errs := Errors{}
	if !s.Exporter.Valid() {
		errs[Exporter] = FieldError{Flagged: true, Message: MsgExporterRequired}
	}
	if !s.Importer.Valid() {
		errs[Importer] = FieldError{Flagged: true, Message: MsgImporterRequired}
	}
	if !s.Category.Valid() {
		errs[Category] = FieldError{Flagged: true, Message: MsgCategoryRequired}
	}
	if _, ok := s.DeclaredAmount(); !ok {
		errs[DeclaredValue] = FieldError{Flagged: true, Message: MsgDeclaredValue}
	}
	if conflict(s) {
		errs[Importer] = importerConflict
		errs[Exporter] = exporterConflict
	}
	return errs
}

// CheckConflict applies only the same-country rule to errs, as done after
// every country edit. It sets both conflict entries when the countries match
// and removes exactly those entries otherwise; other errors are untouched.
// errs is not modified; the updated map is returned.
func CheckConflict(errs Errors, s State) Errors {
	out := errs.Clone()
	if conflict(s) {
		out[Importer] = importerConflict
		out[Exporter] = exporterConflict
		return out
	}
	if out[Importer] == importerConflict {
		delete(out, Importer)
	}
	if out[Exporter] == exporterConflict {
		delete(out, Exporter)
	}
	return out
}
