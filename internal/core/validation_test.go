package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreate() CreateResourceRequest {
	loc := testLocation()
	return CreateResourceRequest{
		Type:        TypeMeteringPoint,
		CountryCode: "EE",
		Location:    &loc,
		Characteristics: []CharacteristicInput{
			{Code: "CONS1", Type: CharConsumptionType, Value: "RESIDENTIAL"},
		},
	}
}

func violationFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	fields := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

func TestValidateCreate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*CreateResourceRequest)
		wantFields []string
	}{
		{
			name:   "valid",
			mutate: func(*CreateResourceRequest) {},
		},
		{
			name:   "valid without characteristics",
			mutate: func(r *CreateResourceRequest) { r.Characteristics = nil },
		},
		{
			name:       "missing type",
			mutate:     func(r *CreateResourceRequest) { r.Type = "" },
			wantFields: []string{"type"},
		},
		{
			name:       "unknown type",
			mutate:     func(r *CreateResourceRequest) { r.Type = "SUBSTATION" },
			wantFields: []string{"type"},
		},
		{
			name:       "lowercase country code",
			mutate:     func(r *CreateResourceRequest) { r.CountryCode = "ee" },
			wantFields: []string{"countryCode"},
		},
		{
			name:       "three letter country code",
			mutate:     func(r *CreateResourceRequest) { r.CountryCode = "EST" },
			wantFields: []string{"countryCode"},
		},
		{
			name:       "missing location",
			mutate:     func(r *CreateResourceRequest) { r.Location = nil },
			wantFields: []string{"location"},
		},
		{
			name: "location fields",
			mutate: func(r *CreateResourceRequest) {
				r.Location = &Location{
					StreetAddress: strings.Repeat("a", 256),
					City:          "",
					PostalCode:    strings.Repeat("1", 21),
					CountryCode:   "E1",
				}
			},
			wantFields: []string{"location.streetAddress", "location.city", "location.postalCode", "location.countryCode"},
		},
		{
			name: "characteristic fields",
			mutate: func(r *CreateResourceRequest) {
				r.Characteristics = []CharacteristicInput{
					{Code: "TOOLONG", Type: CharConsumptionType, Value: "x"},
					{Code: "ab", Type: "UNKNOWN", Value: ""},
					{Code: "", Type: "", Value: strings.Repeat("v", 256)},
				}
			},
			wantFields: []string{
				"characteristics[0].code",
				"characteristics[1].code", "characteristics[1].type", "characteristics[1].value",
				"characteristics[2].code", "characteristics[2].type", "characteristics[2].value",
			},
		},
		{
			name: "violations are collected across fields",
			mutate: func(r *CreateResourceRequest) {
				r.Type = ""
				r.CountryCode = ""
				r.Location = nil
			},
			wantFields: []string{"type", "countryCode", "location"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreate()
			tt.mutate(&req)

			err := ValidateCreate(req)

			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.wantFields, violationFields(t, err))
		})
	}
}

func TestValidateUpdate(t *testing.T) {
	t.Run("empty update is valid", func(t *testing.T) {
		assert.NoError(t, ValidateUpdate(UpdateResourceRequest{}))
	})

	t.Run("empty characteristics list is valid", func(t *testing.T) {
		assert.NoError(t, ValidateUpdate(UpdateResourceRequest{Characteristics: []CharacteristicInput{}}))
	})

	t.Run("bad location", func(t *testing.T) {
		err := ValidateUpdate(UpdateResourceRequest{Location: &Location{CountryCode: "xx"}})
		assert.Equal(t,
			[]string{"location.streetAddress", "location.city", "location.postalCode", "location.countryCode"},
			violationFields(t, err))
	})
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter(ListFilter{}))
	assert.NoError(t, ValidateFilter(ListFilter{CountryCode: "FI", Type: TypeConnectionPoint}))
	assert.Equal(t, []string{"countryCode", "type"},
		violationFields(t, ValidateFilter(ListFilter{CountryCode: "fin", Type: "X"})))
}

func TestCheckDuplicateCharacteristics(t *testing.T) {
	t.Run("distinct pairs pass", func(t *testing.T) {
		err := CheckDuplicateCharacteristics([]CharacteristicInput{
			{Code: "A1", Type: CharConsumptionType},
			{Code: "A1", Type: CharChargingPoint},
			{Code: "B1", Type: CharConsumptionType},
		})
		assert.NoError(t, err)
	})

	t.Run("second occurrence is reported", func(t *testing.T) {
		err := CheckDuplicateCharacteristics([]CharacteristicInput{
			{Code: "DUP01", Type: CharConsumptionType, Value: "first"},
			{Code: "OTHER", Type: CharConsumptionType},
			{Code: "DUP01", Type: CharConsumptionType, Value: "second"},
		})

		var dup *DuplicateCharacteristicError
		require.ErrorAs(t, err, &dup)
		assert.ErrorIs(t, err, ErrDuplicateCharacteristic)
		assert.Equal(t, "DUP01", dup.Code)
		assert.Equal(t, CharConsumptionType, dup.Type)
	})

	t.Run("first repeated pair wins", func(t *testing.T) {
		err := CheckDuplicateCharacteristics([]CharacteristicInput{
			{Code: "X", Type: CharChargingPoint},
			{Code: "Y", Type: CharChargingPoint},
			{Code: "Y", Type: CharChargingPoint},
			{Code: "X", Type: CharChargingPoint},
		})

		var dup *DuplicateCharacteristicError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "Y", dup.Code)
	})
}

func TestErrIntegrityViolation_IsDuplicate(t *testing.T) {
	assert.ErrorIs(t, ErrIntegrityViolation, ErrDuplicateCharacteristic)
}
