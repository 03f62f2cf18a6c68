// Package ident derives deterministic identifiers from business keys, so an
// aggregate can be addressed without a prior lookup. The same key always
// yields the same identifier.
package ident

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// URL returns the name-based UUID (version 5) of path in the URL namespace.
func URL(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
}

// Key returns a stable hex key for name within namespace. It is used as an
// idempotence key for records created by process-manager policies: duplicate
// processing of the same source fact derives the same key.
func Key(namespace, name string) string {
	sum := blake2b.Sum256([]byte(namespace + "\x00" + name))
	return hex.EncodeToString(sum[:16])
}
