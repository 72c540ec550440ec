// Package ident defines the content/node identifier shared by dataset
// hashes, timeseries hashes, and station (node) identities.
package ident

import (
	"bytes"
	"encoding/base32"
	"encoding/json"
	"fmt"

	"github.com/multiformats/go-multihash"
)

// Size is the byte length of a valid Identifier.
const Size = 20

// Identifier is an opaque content digest. Its zero value is invalid.
type Identifier [Size]byte

// b32 is unpadded standard base32 (uppercase A-Z and 2-7) so identifiers are
// filename-safe, with no multibase self-describing prefix byte.
var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Sum computes the Identifier for data using a SHA-1 multihash, then
// extracts the raw digest bytes so the on-disk/wire form stays exactly
// Size bytes long (multihash's own varint-prefixed encoding would make it
// variable-length).
func Sum(data []byte) (Identifier, error) {
	mh, err := multihash.Sum(data, multihash.SHA1, Size)
	if err != nil {
		return Identifier{}, fmt.Errorf("ident: sum: %w", err)
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return Identifier{}, fmt.Errorf("ident: decode multihash: %w", err)
	}
	var id Identifier
	copy(id[:], decoded.Digest)
	return id, nil
}

// FromBytes copies raw bytes into an Identifier, failing if the length is
// wrong.
func FromBytes(b []byte) (Identifier, error) {
	if len(b) != Size {
		return Identifier{}, fmt.Errorf("ident: expected %d bytes, got %d", Size, len(b))
	}
	var id Identifier
	copy(id[:], b)
	return id, nil
}

// Parse decodes a base32 string produced by String.
func Parse(s string) (Identifier, error) {
	raw, err := b32.DecodeString(s)
	if err != nil {
		return Identifier{}, fmt.Errorf("ident: parse %q: %w", s, err)
	}
	return FromBytes(raw)
}

// String renders the identifier as base32, matching filenames and wire form.
func (id Identifier) String() string {
	return b32.EncodeToString(id[:])
}

// IsValid reports whether id is non-zero.
func (id Identifier) IsValid() bool {
	return id != Identifier{}
}

// Compare gives a total bytewise ordering.
func (id Identifier) Compare(other Identifier) int {
	return bytes.Compare(id[:], other[:])
}

// Equal reports structural equality.
func (id Identifier) Equal(other Identifier) bool { return id == other }

// MarshalJSON renders the identifier as its base32 string.
func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON parses the base32 string form.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
