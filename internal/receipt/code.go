package receipt

import (
	"regexp"
	"strings"

	"github.com/rs/xid"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// NewCode returns a fresh receipt code: 20 characters of [0-9A-V], unique
// and roughly time ordered.
func NewCode() string {
	return strings.ToUpper(xid.New().String())
}

// ValidID reports whether id may be used as a storage key. Anything outside
// letters, digits and hyphens is rejected before touching the store.
func ValidID(id string) bool {
	return len(id) <= 64 && idPattern.MatchString(id)
}
