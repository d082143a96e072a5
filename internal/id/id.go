// Package id generates compact identifiers for journal records.
//
// An identifier is the 16 random bytes of a UUIDv4 encoded as unpadded
// base32 and lowercased, giving a 26-character string that is safe in URLs
// and filenames and sorts without surprises.
package id

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var enc = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a fresh identifier.
func NewID() (string, error) {
	raw, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToLower(enc.EncodeToString(raw[:])), nil
}
