package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"wrapped group not found", fmt.Errorf("%w: id 42", ErrGroupNotFound), http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"wrapped validation", fmt.Errorf("%w: group name is required", ErrValidation), http.StatusBadRequest},
		{"expired token", ErrTokenExpired, http.StatusUnauthorized},
		{"duplicate user", ErrUserAlreadyExists, http.StatusConflict},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, HTTPStatusFromError(tc.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	req := require.New(t)
	req.True(IsNotFound(fmt.Errorf("lookup: %w", ErrMessageNotFound)))
	req.False(IsNotFound(ErrForbidden))

	for _, err := range []error{ErrUserNotFound, ErrGroupNotFound, ErrMessageNotFound} {
		req.ErrorIs(err, ErrNotFound)
		req.False(errors.Is(err, ErrUserAlreadyExists))
	}
	req.Equal("group not found", ErrGroupNotFound.Error())
}
