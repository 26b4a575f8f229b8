package util

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hex.EncodeToString(SHA256([]byte("abc"))))

	file := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0600))
	digest, err := SHA256File(file)
	require.NoError(t, err)
	assert.Equal(t, SHA256([]byte("abc")), digest)
}

func TestZStd(t *testing.T) {
	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = byte(i % 7)
	}

	z, err := ZStd(buf)
	require.NoError(t, err)
	assert.Less(t, len(z), len(buf))

	assert.True(t, IsZStd(z))
	assert.False(t, IsZStd(buf))
	assert.False(t, IsZStd(nil))

	out, err := UnZStd(z)
	require.NoError(t, err)
	assert.Equal(t, buf, out)
}

func TestWriteFileAtomic(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteFileAtomic(file, []byte("one"), 0600))
	require.NoError(t, WriteFileAtomic(file, []byte("two"), 0600))

	buf, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), buf)

	_, err = os.Stat(file + ".new")
	assert.True(t, os.IsNotExist(err))
}
