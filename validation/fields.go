// Package validation holds the shape checks for the free-text client fields.
package validation

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	FieldName  = "name"
	FieldEmail = "email"
	FieldPhone = "phone"
)

// Fields lists the fields that gate form submission.
var Fields = []string{FieldName, FieldEmail, FieldPhone}

var (
	// letters (accented included) and spaces, at least 3
	nameRe  = regexp.MustCompile(`^[\p{L}\s]{3,}$`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^[\d\s-]{7,15}$`)
)

var patterns = map[string]*regexp.Regexp{
	FieldName:  nameRe,
	FieldEmail: emailRe,
	FieldPhone: phoneRe,
}

// Validate reports whether raw, once trimmed, has the expected shape for field.
// Unknown fields are never valid.
func Validate(field, raw string) bool {
	re, ok := patterns[field]
	if !ok {
		return false
	}
	return re.MatchString(strings.TrimSpace(raw))
}

// Patterns returns the source of each field's pattern, for client-side checks.
func Patterns() map[string]string {
	out := make(map[string]string, len(patterns))
	for field, re := range patterns {
		out[field] = re.String()
	}
	return out
}

// Tags maps validator tags to the field they check.
var Tags = map[string]string{
	"clientname":  FieldName,
	"clientemail": FieldEmail,
	"clientphone": FieldPhone,
}

// Register installs the client tags on v so struct binding uses the same predicates.
func Register(v *validator.Validate) error {
	for tag, field := range Tags {
		field := field
		err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return Validate(field, fl.Field().String())
		})
		if err != nil {
			return err
		}
	}
	return nil
}
