package digest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256FileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ndjson")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	sum, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, EmptySHA256, sum)
}

func TestSHA256BytesMatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	content := []byte("```json\n{}\n```\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, SHA256Bytes(content), sum)
	assert.Len(t, sum, 64)
}

func TestRIPEMD160OfSHA256(t *testing.T) {
	r160, err := RIPEMD160OfSHA256(EmptySHA256)
	require.NoError(t, err)
	assert.Equal(t, EmptyRIPEMD160, r160)
}

func TestRIPEMD160OfSHA256RejectsBadHex(t *testing.T) {
	_, err := RIPEMD160OfSHA256("not-hex")
	assert.Error(t, err)
}

func TestSHA256FileMissing(t *testing.T) {
	_, err := SHA256File(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "failed to open")
}
