package session

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// NewSessionID returns a short identifier for one server run. A random UUID
// is hashed and folded to 16 bits so it fits the fixed-size wire field; it
// disambiguates concurrent servers, it is not a secret.
func NewSessionID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	sum := xxhash.Sum64String(raw)
	folded := uint16(sum) ^ uint16(sum>>16) ^ uint16(sum>>32) ^ uint16(sum>>48)
	return fmt.Sprintf("%04x", folded)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
