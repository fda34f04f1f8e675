package models

import (
	"errors"
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSheetId(t *testing.T) {
	cases := []struct {
		in       string
		expected string
		wantErr  bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbCdEfGhIjKlMnOp_qrs-TUV/edit#gid=0", "1AbCdEfGhIjKlMnOp_qrs-TUV", false},
		{"  1AbCdEfGhIjKlMnOp_qrs-TUV ", "1AbCdEfGhIjKlMnOp_qrs-TUV", false},
		{"https://example.com/not-a-sheet", "", true},
		{"short", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseSheetId(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrInvalidSheetRef, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.expected, got)
	}
}

func TestNewConnectionValidate(t *testing.T) {
	ok := &NewConnection{Month: 8, Year: 2024, SheetURL: "https://docs.google.com/spreadsheets/d/1AbCdEfGhIjKlMnOp/edit", SheetTab: " Aug "}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "1AbCdEfGhIjKlMnOp", ok.SheetId)
	assert.Equal(t, "Aug", ok.SheetTab)

	for _, bad := range []*NewConnection{
		{Month: 13, Year: 2024, SheetId: "1AbCdEfGhIjKlMnOp"},
		{Month: 0, Year: 2024, SheetId: "1AbCdEfGhIjKlMnOp"},
		{Month: 5, Year: 1999, SheetId: "1AbCdEfGhIjKlMnOp"},
		{Month: 5, Year: 2024},
	} {
		assert.Error(t, bad.Validate(), "%+v", bad)
	}
}

func TestPeriod(t *testing.T) {
	p := Period{Month: 2, Year: 2024}
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, 29, p.LastDay())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), p.Date(31))
	assert.True(t, p.Contains(p.Date(15)))
	assert.False(t, p.Contains(p.End()))
}

func TestClassifyUpsertErr(t *testing.T) {
	assert.Equal(t, UpsertRowAffectedTwice, classifyUpsertErr(&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.Equal(t, UpsertConstraintMissing, classifyUpsertErr(&mysqlDriver.MySQLError{Number: 1176, Message: "Key does not exist"}))
	assert.Equal(t, UpsertConstraintMissing, classifyUpsertErr(errors.New("ERROR: there is no unique or exclusion constraint matching the ON CONFLICT specification")))
	assert.Equal(t, UpsertRowAffectedTwice, classifyUpsertErr(errors.New("ON CONFLICT DO UPDATE command cannot affect row a second time")))
	assert.Equal(t, UpsertFailed, classifyUpsertErr(errors.New("connection reset")))

	assert.True(t, UpsertConstraintMissing.Retryable())
	assert.False(t, UpsertFailed.Retryable())
}

func TestTranslateErr(t *testing.T) {
	assert.ErrorIs(t, translateErr(&mysqlDriver.MySQLError{Number: 1062}), ErrDuplicate)
	assert.Nil(t, translateErr(nil))
}

func TestDrumCapacity(t *testing.T) {
	d := DrumTracking{InitialQuantity: dec("1000")}
	assert.True(t, d.Capacity().Equal(dec("1000")))
	d.CatalogItem = &CatalogItem{RatedCapacity: dec("2000")}
	assert.True(t, d.Capacity().Equal(dec("2000")))
	assert.True(t, DrumStatusInactive.IsRetired())
	assert.False(t, DrumStatusMaintenance.IsRetired())
}

func TestHasDrumOffsets(t *testing.T) {
	cases := []struct {
		name     string
		line     LineRecord
		expected bool
	}{
		{"both readings", LineRecord{CableStart: dec("1200"), CableEnd: dec("500"), Total: dec("650")}, true},
		{"span from zero", LineRecord{CableStart: dec("0"), CableEnd: dec("500"), Total: dec("500")}, true},
		{"end reading blank", LineRecord{CableStart: dec("1500"), CableMiddle: dec("1450"), F1: dec("50"), Total: dec("50")}, false},
		{"start reading blank", LineRecord{CableMiddle: dec("1450"), CableEnd: dec("1500"), G1: dec("50"), Total: dec("50")}, false},
		{"no readings", LineRecord{Total: dec("40")}, false},
		{"same reading", LineRecord{CableStart: dec("300"), CableEnd: dec("300")}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, tc.line.HasDrumOffsets(), tc.name)
	}
}
