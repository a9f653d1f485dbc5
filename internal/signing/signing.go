// Package signing produces and checks HMAC signatures for expiring share
// links.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Query parameter names carried by signed links.
const (
	ParamExpires   = "expires"
	ParamSignature = "signature"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for a resource id and expiry.
func (s *Signer) Sign(resourceID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", resourceID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate checks the signature and that the link has not expired at now.
func (s *Signer) Validate(resourceID, expires, signature string, now time.Time) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(resourceID, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return false
	}
	return now.Unix() <= exp
}

// SignedQuery returns the query parameters of a link valid until expiresAt.
func (s *Signer) SignedQuery(resourceID string, expiresAt time.Time) url.Values {
	exp := expiresAt.Unix()
	return url.Values{
		ParamExpires:   {strconv.FormatInt(exp, 10)},
		ParamSignature: {s.Sign(resourceID, exp)},
	}
}
