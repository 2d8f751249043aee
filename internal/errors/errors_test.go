package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestAPIError_Wrap(t *testing.T) {
	cause := errors.New("record not found")
	err := NotFound("File not found", cause)

	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Equal(t, "File not found: record not found", err.Error())
	assert.ErrorIs(t, err, cause)

	var apiErr *APIError
	assert.True(t, errors.As(error(err), &apiErr))
}

func TestNewValidationError(t *testing.T) {
	type form struct {
		Email string `validate:"required,email"`
	}
	err := NewValidationError(validator.New().Struct(form{Email: "nope"}))

	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, map[string]string{"Email": "email"}, err.Fields)
}
