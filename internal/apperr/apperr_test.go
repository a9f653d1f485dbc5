package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrBookNotFound, http.StatusNotFound},
		{fmt.Errorf("borrow: %w", ErrRecordNotFound), http.StatusNotFound},
		{ErrAlreadyBorrowed, http.StatusBadRequest},
		{ErrOutOfStock, http.StatusBadRequest},
		{Validation("userId is required"), http.StatusBadRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("return: %w", ErrAlreadyReturned.WithMessage("already returned on 2024-01-13"))
	assert.True(t, errors.Is(wrapped, ErrAlreadyReturned))
	assert.False(t, errors.Is(wrapped, ErrAlreadyBorrowed))
	assert.True(t, errors.Is(Validation("a"), Validation("b")))
}

func TestPublicMessageHidesInternalCauses(t *testing.T) {
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("pq: relation does not exist")))
	assert.Equal(t, ErrOutOfStock.Message, PublicMessage(fmt.Errorf("decrement: %w", ErrOutOfStock)))
}
