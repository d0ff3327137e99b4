package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const maxUsernameLength = 30

var usernamePattern = regexp.MustCompile(`^\w+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

type registration struct {
	Username string `validate:"required,max=30,username"`
	Password string `validate:"required"`
}

// ValidUsername reports whether name may be registered.
func ValidUsername(name string) bool {
	return validate.Var(name, fmt.Sprintf("required,max=%d,username", maxUsernameLength)) == nil
}

func validateBody(body string, maxLen int) error {
	// tweets are cached as JSON, which would rewrite invalid bytes
	if !utf8.ValidString(body) {
		return validationError("tweet body is not valid UTF-8")
	}
	if strings.TrimSpace(body) == "" {
		return validationError("tweet body is empty")
	}
	// max counts runes for strings
	if err := validate.Var(body, fmt.Sprintf("required,max=%d", maxLen)); err != nil {
		return validationError("tweet body must be 1..%d characters", maxLen)
	}
	return nil
}
