package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_EmptyIsNil(t *testing.T) {
	v := Errors{}
	v.Required("name", "Ona")
	v.MaxLen("name", "Ona", 255)
	v.Email("email", "a@x.com")
	v.Date("start_date", "2024-11-14")
	v.Clock("start_time", "19:30")
	v.NonNegative("price", 0)
	assert.NoError(t, v.Err())
}

func TestErrors_CollectsFields(t *testing.T) {
	v := Errors{}
	v.Required("name", "  ")
	v.Email("email", "not-an-email")
	v.Email("email2", "Ona <a@x.com>")
	v.MinLen("password", "short", 8)
	v.Date("start_date", "14/11/2024")
	v.Clock("start_time", "7pm")
	v.NonNegative("price", -1)

	err := v.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var fields Errors
	require.True(t, errors.As(err, &fields))
	assert.Len(t, fields, 7)
	assert.Equal(t, []string{"The password field must be at least 8 characters."}, fields["password"])
	assert.Contains(t, err.Error(), "email: The email field must be a valid email address.")
}
