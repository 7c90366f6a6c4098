package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		field string
		value string
		want  bool
	}{
		{FieldName, "John Doe", true},
		{FieldName, "Ana Pérez", true},
		{FieldName, "  Zoë  ", true},
		{FieldName, "Jo", false},
		{FieldName, "R2D2", false},
		{FieldName, "", false},
		{FieldEmail, "a@x.com", true},
		{FieldEmail, "first.last@sub.domain.org", true},
		{FieldEmail, "a@x", false},
		{FieldEmail, "a b@x.com", false},
		{FieldEmail, "@x.com", false},
		{FieldPhone, "555-1234", true},
		{FieldPhone, "555 123 4567", true},
		{FieldPhone, "123456", false},
		{FieldPhone, "1234567890123456", false},
		{FieldPhone, "+34 555 1234", false},
		{"type", "vip", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Validate(tt.field, tt.value), "%s=%q", tt.field, tt.value)
	}
}

func TestRegisterBindsTags(t *testing.T) {
	v := validator.New()
	require.NoError(t, Register(v))

	type request struct {
		Name  string `validate:"required,clientname"`
		Email string `validate:"required,clientemail"`
		Phone string `validate:"required,clientphone"`
	}

	assert.NoError(t, v.Struct(request{Name: "John Doe", Email: "j@x.com", Phone: "555-1234"}))

	err := v.Struct(request{Name: "Jo", Email: "j@x.com", Phone: "555-1234"})
	require.Error(t, err)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "clientname", verrs[0].Tag())
}
