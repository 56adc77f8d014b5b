package zmodem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFileInfo(t *testing.T) {
	assert.Equal(t, []byte("hello.bin\x00100\x00"), BuildFileInfo("hello.bin", 100))
	assert.Equal(t, []byte("empty\x000\x00"), BuildFileInfo("empty", 0))
}

func TestParseFileInfo(t *testing.T) {
	info, err := ParseFileInfo([]byte("hello.bin\x00100\x00"))
	require.NoError(t, err)
	assert.Equal(t, "hello.bin", info.Name)
	assert.Equal(t, int64(100), info.Size)
}

func TestParseFileInfoRoundTrip(t *testing.T) {
	info, err := ParseFileInfo(BuildFileInfo("dir entry.tar.gz", 1<<31))
	require.NoError(t, err)
	assert.Equal(t, "dir entry.tar.gz", info.Name)
	assert.Equal(t, int64(1<<31), info.Size)
}

func TestParseFileInfoExtraFields(t *testing.T) {
	// lrzsz appends mtime, mode and batch counters after the size.
	info, err := ParseFileInfo([]byte("notes.txt\x004096 1700000000 100644 0 1 4096\x00"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", info.Name)
	assert.Equal(t, int64(4096), info.Size)
}

func TestParseFileInfoLatin1Name(t *testing.T) {
	// 0xE9 is not valid UTF-8 on its own; Latin-1 maps it to 'é'.
	payload := append([]byte{'r', 0xE9, 's', 'u', 'm', 0xE9}, 0)
	payload = append(payload, []byte("12\x00")...)
	info, err := ParseFileInfo(payload)
	require.NoError(t, err)
	assert.Equal(t, "résumé", info.Name)
	assert.Equal(t, int64(12), info.Size)
}

func TestParseFileInfoUTF8NamePreserved(t *testing.T) {
	info, err := ParseFileInfo(BuildFileInfo("héllo→.txt", 1))
	require.NoError(t, err)
	assert.Equal(t, "héllo→.txt", info.Name)
}

func TestParseFileInfoMalformed(t *testing.T) {
	// No NUL at all: the name field is missing.
	_, err := ParseFileInfo([]byte("no terminator"))
	assert.True(t, IsKind(err, ErrMalformedFileName))

	// Empty name.
	_, err = ParseFileInfo([]byte("\x00100\x00"))
	assert.True(t, IsKind(err, ErrMalformedFileName))

	// Size is not decimal.
	_, err = ParseFileInfo([]byte("f\x00abc\x00"))
	assert.True(t, IsKind(err, ErrMalformedFileSize))

	// Size missing entirely.
	_, err = ParseFileInfo([]byte("f\x00"))
	assert.True(t, IsKind(err, ErrMalformedFileSize))

	// Negative size.
	_, err = ParseFileInfo([]byte("f\x00-5\x00"))
	assert.True(t, IsKind(err, ErrMalformedFileSize))
}
