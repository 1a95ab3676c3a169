package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "ichra-quotes/internal/common/errors"
)

func validRequest() []byte {
	return []byte(`{
		"group": {
			"id": "group-1",
			"effectiveDate": "2024-07-01",
			"planYear": 2024,
			"members": [
				{"id": "m1", "age": 40, "zip": "80203", "householdIncome": "52000", "familySize": 2}
			]
		},
		"filters": {"onMarket": true, "offMarket": true}
	}`)
}

func TestValidateQuoteRequest_Valid(t *testing.T) {
	assert.NoError(t, ValidateQuoteRequest(validRequest()))
}

func TestValidateQuoteRequest_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing group", `{"filters": {}}`},
		{"empty members", `{"group": {"id": "g", "effectiveDate": "2024-07-01", "planYear": 2024, "members": []}, "filters": {}}`},
		{"bad zip", `{"group": {"id": "g", "effectiveDate": "2024-07-01", "planYear": 2024, "members": [{"id": "m1", "age": 40, "zip": "8020"}]}, "filters": {}}`},
		{"bad date", `{"group": {"id": "g", "effectiveDate": "07/01/2024", "planYear": 2024, "members": [{"id": "m1", "age": 40, "zip": "80203"}]}, "filters": {}}`},
		{"negative age", `{"group": {"id": "g", "effectiveDate": "2024-07-01", "planYear": 2024, "members": [{"id": "m1", "age": -1, "zip": "80203"}]}, "filters": {}}`},
		{"not json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuoteRequest([]byte(tt.payload))
			require.Error(t, err)
			assert.Equal(t, errs.ErrCodeInvalidFilterInput, errs.CodeOf(err))
			assert.False(t, errs.IsRetryable(err))
		})
	}
}

func TestValidateFilters(t *testing.T) {
	assert.NoError(t, ValidateFilters([]byte(`{"metalLevel": "silver", "carrier": "Anthem"}`)))
	assert.NoError(t, ValidateFilters([]byte(`{}`)))

	err := ValidateFilters([]byte(`{"metalLevel": "copper"}`))
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeInvalidFilterInput, errs.CodeOf(err))

	err = ValidateFilters([]byte(`{"pageSize": -5}`))
	require.Error(t, err)
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("hr@acme.example.com"))
	assert.False(t, ValidateEmail("not-an-email"))
}

func TestValidatePhone(t *testing.T) {
	assert.True(t, ValidatePhone("+13035551212"))
	assert.False(t, ValidatePhone("123"))
}
