package server

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrBadIdentifier is returned for build ids that are not in canonical form.
var ErrBadIdentifier = errors.New("build id is not a canonical uuid")

// ParseBuildID accepts only the canonical hyphenated lowercase form of a
// uuid. Braced, URN-prefixed, unhyphenated and uppercase spellings are
// rejected even though uuid.Parse understands them.
func ParseBuildID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrBadIdentifier, err)
	}
	if id.String() != s {
		return uuid.Nil, ErrBadIdentifier
	}
	return id, nil
}
