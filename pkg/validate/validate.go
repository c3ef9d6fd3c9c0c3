// Package validate collects field-level request validation failures.
package validate

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrValidation = errors.New("validation failed")

// Errors maps a request field to its messages. A non-empty Errors is an error
// that unwraps to ErrValidation.
type Errors map[string][]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e[f], ", "))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e Errors) Unwrap() error { return ErrValidation }

func (e Errors) Add(field, format string, args ...any) {
	e[field] = append(e[field], fmt.Sprintf(format, args...))
}

// Err returns nil when nothing was recorded.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "The %s field is required.", field)
		return false
	}
	return true
}

func (e Errors) MaxLen(field, value string, n int) {
	if utf8.RuneCountInString(value) > n {
		e.Add(field, "The %s field must not be greater than %d characters.", field, n)
	}
}

func (e Errors) MinLen(field, value string, n int) {
	if utf8.RuneCountInString(value) < n {
		e.Add(field, "The %s field must be at least %d characters.", field, n)
	}
}

func (e Errors) Email(field, value string) {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) {
		e.Add(field, "The %s field must be a valid email address.", field)
	}
}

func (e Errors) Date(field, value string) {
	if _, err := time.Parse(time.DateOnly, value); err != nil {
		e.Add(field, "The %s field must be a valid date (YYYY-MM-DD).", field)
	}
}

func (e Errors) Clock(field, value string) {
	if _, err := time.Parse("15:04", value); err != nil {
		e.Add(field, "The %s field must match the format H:i.", field)
	}
}

func (e Errors) NonNegative(field string, value float64) {
	if value < 0 {
		e.Add(field, "The %s field must be at least 0.", field)
	}
}
