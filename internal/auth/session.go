// Package auth provides session token generation and hashing. Tokens are
// handed to clients; only their digests are stored or cached.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// SessionID is the random token identifying a login session. The raw token
// never leaves the boundary layer; lookups use its digest.
type SessionID [32]byte

// NewSessionID generates a cryptographically random session token.
func NewSessionID() (SessionID, error) {
	var id SessionID
	if _, err := rand.Read(id[:]); err != nil {
		return SessionID{}, fmt.Errorf("failed to generate session id: %w", err)
	}
	return id, nil
}

// Digest returns the SHA-256 digest under which the session is stored.
func (id SessionID) Digest() Digest {
	return Digest(sha256.Sum256(id[:]))
}

func (id SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ParseSessionID decodes a session token from its URL-safe base64 form.
func ParseSessionID(s string) (SessionID, error) {
	var id SessionID
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return SessionID{}, fmt.Errorf("invalid session id: %w", err)
	}
	if len(b) != len(id) {
		return SessionID{}, fmt.Errorf("invalid session id: expected %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Digest is the stored hash of a session token.
type Digest [32]byte

func (d Digest) String() string {
	return base64.RawURLEncoding.EncodeToString(d[:])
}

// ParseDigest decodes a stored session digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid session digest: %w", err)
	}
	if len(b) != len(d) {
		return Digest{}, fmt.Errorf("invalid session digest: expected %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}
