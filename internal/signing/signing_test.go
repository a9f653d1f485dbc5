package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	now := time.Unix(1700000000, 0)
	sig := s.Sign("RECEIPT1", 1700000600)
	assert.NotEmpty(t, sig)

	assert.True(t, s.Validate("RECEIPT1", "1700000600", sig, now))
	assert.False(t, s.Validate("RECEIPT2", "1700000600", sig, now), "wrong id")
	assert.False(t, s.Validate("RECEIPT1", "42", sig, now), "wrong expiry")
	assert.False(t, s.Validate("RECEIPT1", "soon", sig, now), "unparsable expiry")
	assert.False(t, s.Validate("RECEIPT1", "1700000600", sig, now.Add(time.Hour)), "expired")
	assert.False(t, NewSigner([]byte("other")).Validate("RECEIPT1", "1700000600", sig, now), "wrong secret")
}

func TestSignedQueryRoundTrip(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	now := time.Unix(1700000000, 0)
	q := s.SignedQuery("RECEIPT1", now.Add(time.Hour))
	assert.True(t, s.Validate("RECEIPT1", q.Get(ParamExpires), q.Get(ParamSignature), now))
}
