package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{ErrInvalidOrExpiredCode, http.StatusBadRequest},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrUnverifiedAccount, http.StatusUnauthorized},
		{Authorization("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{IntegrityInput("missing anchor"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NotFound("x")), http.StatusNotFound},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestErrorIsKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrConflict, "document changed", cause)
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "document changed: disk full", err.Error())

	require.ErrorIs(t, ErrUnverifiedAccount, ErrAuthentication)
	require.False(t, errors.Is(ErrUnverifiedAccount, ErrInvalidCredentials))
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	require.Equal(t, "title is required", PublicMessage(Validation("title is required"), "internal error"))
	require.Equal(t, "internal error", PublicMessage(errors.New("mongo: connection refused"), "internal error"))
	require.Equal(t, "internal error", PublicMessage(IntegrityInput("anchor missing"), "internal error"))
}
