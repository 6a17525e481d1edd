package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	err := OriginUnavailable("fetch quote AAPL", cause)
	assert.ErrorIs(t, err, ErrOriginUnavailable)
	assert.ErrorIs(t, err, cause)

	err = Persistence("upsert prices", cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, NotFound("profile ZZZZ"), ErrNotFound)
	assert.ErrorIs(t, InvalidInput("bad symbol %q", "a b"), ErrInvalidInput)
	assert.ErrorIs(t, OriginUnavailable("timeout", nil), ErrOriginUnavailable)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{InvalidInput("x"), http.StatusBadRequest},
		{NotFound("x"), http.StatusNotFound},
		{OriginUnavailable("x", nil), http.StatusBadGateway},
		{Persistence("x", errors.New("disk")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "err=%v", tt.err)
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "invalid_input", Kind(InvalidInput("x")))
	assert.Equal(t, "not_found", Kind(NotFound("x")))
	assert.Equal(t, "origin_unavailable", Kind(OriginUnavailable("x", nil)))
	assert.Equal(t, "persistence_failure", Kind(Persistence("x", errors.New("y"))))
	assert.Equal(t, "internal", Kind(errors.New("z")))
}
