package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNativeType(t *testing.T) {
	tests := []struct {
		fieldType string
		want      bool
	}{
		{fieldType: "text", want: true},
		{fieldType: "VARCHAR(255)", want: true},
		{fieldType: "numeric(18, 2)", want: true},
		{fieldType: "double precision", want: true},
		{fieldType: "integer[]", want: true},
		{fieldType: "  timestamp with time zone ", want: true},
		{fieldType: "email", want: false},
		{fieldType: "varchar(", want: false},
		{fieldType: "integer(1); DROP TABLE deals; --", want: false},
		{fieldType: "integer not null", want: false},
		{fieldType: "text /* x */", want: false},
		{fieldType: "numeric(18,2,3)", want: false},
		{fieldType: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.fieldType, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNativeType(tt.fieldType))
		})
	}
}

func TestValidateOptionsRejectsInjectedType(t *testing.T) {
	err := ValidateOptions("integer(1); DROP TABLE deals; --", nil)
	assert.ErrorIs(t, err, ErrUnknownFieldType)

	assert.NoError(t, ValidateOptions("varchar(64)", nil))
	assert.ErrorIs(t, ValidateOptions("varchar(64)", map[string]any{"x": 1}), ErrInvalidOptions)
}
