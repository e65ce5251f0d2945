package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionIDRoundTrip(t *testing.T) {
	id, err := NewSessionID()
	require.NoError(t, err)

	parsed, err := ParseSessionID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	// The digest is deterministic and survives its own encoding.
	digest := id.Digest()
	require.Equal(t, digest, id.Digest())

	parsedDigest, err := ParseDigest(digest.String())
	require.NoError(t, err)
	require.Equal(t, digest, parsedDigest)
}

func TestParseSessionIDRejectsGarbage(t *testing.T) {
	_, err := ParseSessionID("not base64!!")
	require.Error(t, err)

	_, err = ParseSessionID("c2hvcnQ") // valid base64, wrong length
	require.Error(t, err)
}

func TestDistinctSessionIDs(t *testing.T) {
	a, err := NewSessionID()
	require.NoError(t, err)
	b, err := NewSessionID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a.Digest(), b.Digest())
}
