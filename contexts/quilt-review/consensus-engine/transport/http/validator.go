package http

import (
	"regexp"
	"strconv"

	"gopkg.in/go-playground/validator.v9"
)

var verifierRegex = regexp.MustCompile(`^[\w .@-]{1,64}$`)

// Validator checks request DTOs against their validate tags.
type Validator struct {
	validator *validator.Validate
}

func NewValidator() *Validator {
	v := &Validator{
		validator: validator.New(),
	}

	v.validator.RegisterAlias("optional", "omitempty")
	_ = v.validator.RegisterValidation("t_verifier", isVerifier)
	_ = v.validator.RegisterValidation("t_maxbytes", isWithinBytes)

	return v
}

func (v *Validator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func isVerifier(fl validator.FieldLevel) bool {
	return verifierRegex.MatchString(fl.Field().String())
}

// isWithinBytes bounds a string by its encoded length; the builtin max tag
// counts runes.
func isWithinBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}
