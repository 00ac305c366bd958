package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
)

func validState() State {
	return State{
		Exporter:  catalog.USA,
		Importer:  catalog.UK,
		Category:  catalog.Electronics,
		Declared:  "500000",
		Condition: catalog.Normal,
	}
}

func TestValidate_EmptyForm(t *testing.T) {
	errs := Validate(NewState())
	assert.Equal(t, Errors{
		Exporter:      {Flagged: true, Message: MsgExporterRequired},
		Importer:      {Flagged: true, Message: MsgImporterRequired},
		Category:      {Flagged: true, Message: MsgCategoryRequired},
		DeclaredValue: {Flagged: true, Message: MsgDeclaredValue},
	}, errs)
}

func TestValidate_SameCountry(t *testing.T) {
	s := validState()
	s.Importer = s.Exporter

	errs := Validate(s)
	assert.Equal(t, Errors{
		Importer: {Flagged: true, Message: MsgSameCountry},
		Exporter: {Flagged: true},
	}, errs)
	assert.True(t, errs.Flagged(Exporter))
	assert.Empty(t, errs.Message(Exporter))
}

func TestValidate_DeclaredValue(t *testing.T) {
	for _, raw := range []string{"", "0", "-3", "abc", "1.5", "12abc", "99999999999999999999"} {
		s := validState()
		s.Declared = raw
		assert.True(t, Validate(s).Flagged(DeclaredValue), "%q", raw)
	}
	for _, raw := range []string{"1", " 42 ", "500000"} {
		s := validState()
		s.Declared = raw
		assert.True(t, Validate(s).Empty(), "%q", raw)
	}
}

func TestCheckConflict_LeavesOtherErrors(t *testing.T) {
	s := NewState()
	errs := Validate(s)

	require.NoError(t, s.Set(Exporter, "3"))
	require.NoError(t, s.Set(Importer, "3"))
	errs = CheckConflict(errs, s)
	assert.Equal(t, MsgSameCountry, errs.Message(Importer))
	assert.True(t, errs.Flagged(Exporter))
	assert.Equal(t, MsgCategoryRequired, errs.Message(Category), "unrelated errors persist")

	require.NoError(t, s.Set(Importer, "4"))
	errs = CheckConflict(errs, s)
	assert.False(t, errs.Flagged(Importer))
	assert.False(t, errs.Flagged(Exporter))
	assert.True(t, errs.Flagged(Category))
}

func TestCheckConflict_KeepsRequiredMessages(t *testing.T) {
	errs := Validate(NewState())
	s := NewState()
	require.NoError(t, s.Set(Exporter, "2"))

	errs = CheckConflict(errs, s)
	assert.Equal(t, MsgImporterRequired, errs.Message(Importer))
	assert.Equal(t, MsgExporterRequired, errs.Message(Exporter), "only conflict entries are cleared")
}

func TestCheckConflict_DoesNotMutateInput(t *testing.T) {
	s := validState()
	s.Importer = s.Exporter
	in := Errors{}
	out := CheckConflict(in, s)
	assert.Empty(t, in)
	assert.Len(t, out, 2)
}

func TestState_Set(t *testing.T) {
	s := NewState()
	s.Exporter, s.Prefilled = catalog.Japan, true

	require.NoError(t, s.Set(Condition, "2"))
	assert.Equal(t, catalog.Preferential, s.Condition)
	assert.True(t, s.Prefilled)

	require.NoError(t, s.Set(Exporter, "1"))
	assert.False(t, s.Prefilled, "editing the exporter drops the prefill marker")

	assert.ErrorIs(t, s.Set(Importer, "99"), catalog.ErrUnknownCountry)
	assert.ErrorIs(t, s.Set(Category, "0"), catalog.ErrUnknownCategory)
	assert.Error(t, s.Set(Field("colour"), "red"))

	require.NoError(t, s.Set(Exporter, ""))
	assert.Zero(t, s.Exporter)
	assert.Equal(t, "", s.Value(Exporter))
	assert.Equal(t, "2", s.Value(Condition))
}

func TestState_Request(t *testing.T) {
	req, err := validState().Request()
	require.NoError(t, err)
	assert.Equal(t, calculator.Request{Exporter: 1, Importer: 9, Category: 1, DeclaredValue: 500000, Condition: 1}, req)

	_, err = NewState().Request()
	assert.Error(t, err)
}

func TestParseField(t *testing.T) {
	f, err := ParseField("declared_value")
	require.NoError(t, err)
	assert.Equal(t, DeclaredValue, f)

	_, err = ParseField("declared")
	assert.Error(t, err)
}
