package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePreferOurs(t *testing.T) {
	res, err := Resolve([]byte("base\n"), []byte("ours\n"), []byte("theirs\n"), PolicyPreferOurs)
	require.NoError(t, err)
	assert.Equal(t, "ours\n", string(res.Merged))
	assert.False(t, res.Unresolved)
}

func TestResolvePreferTheirs(t *testing.T) {
	res, err := Resolve([]byte("base\n"), []byte("ours\n"), []byte("theirs\n"), PolicyPreferTheirs)
	require.NoError(t, err)
	assert.Equal(t, "theirs\n", string(res.Merged))
}

func TestResolveTextualUnion(t *testing.T) {
	res, err := Resolve([]byte("base\n"), []byte("a\nb\n"), []byte("c\nd\n"), PolicyTextualUnion)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd\n", string(res.Merged))
}

func TestResolveEmitMarkersCleanNonOverlapping(t *testing.T) {
	base := "one\ntwo\nthree\n"
	ours := "one changed\ntwo\nthree\n"
	theirs := "one\ntwo\nthree changed\n"
	res, err := Resolve([]byte(base), []byte(ours), []byte(theirs), PolicyEmitMarkers)
	require.NoError(t, err)
	assert.False(t, res.Unresolved)
	assert.Equal(t, "one changed\ntwo\nthree changed\n", string(res.Merged))
}

func TestResolveEmitMarkersConflict(t *testing.T) {
	base := "one\ntwo\nthree\n"
	ours := "one OURS\ntwo\nthree\n"
	theirs := "one THEIRS\ntwo\nthree\n"
	res, err := Resolve([]byte(base), []byte(ours), []byte(theirs), PolicyEmitMarkers)
	require.NoError(t, err)
	assert.True(t, res.Unresolved)
	assert.Contains(t, string(res.Merged), "<<<<<<< ours")
	assert.Contains(t, string(res.Merged), "one OURS")
	assert.Contains(t, string(res.Merged), "one THEIRS")
	assert.Contains(t, string(res.Merged), ">>>>>>> theirs")
}

func TestResolveIdenticalChangeOnBothSidesIsClean(t *testing.T) {
	base := "one\ntwo\n"
	ours := "one changed\ntwo\n"
	theirs := "one changed\ntwo\n"
	res, err := Resolve([]byte(base), []byte(ours), []byte(theirs), PolicyEmitMarkers)
	require.NoError(t, err)
	assert.False(t, res.Unresolved)
	assert.Equal(t, "one changed\ntwo\n", string(res.Merged))
}

func TestIsBinaryDetectsNulByte(t *testing.T) {
	assert.True(t, isBinary([]byte("text\x00more")))
	assert.False(t, isBinary([]byte("plain text\n")))
}

func TestResolveBinaryFallsBackUnderMarkers(t *testing.T) {
	bin := []byte("\x00\x01\x02binary")
	res, err := Resolve(bin, bin, []byte("\x00different"), PolicyEmitMarkers)
	require.NoError(t, err)
	assert.True(t, res.Unresolved)
}
