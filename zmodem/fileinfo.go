package zmodem

import (
	"bytes"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// The ZFILE data subpacket carries the file's metadata as a sequence of
// null-terminated fields: the name, then a text field beginning with
// the decimal size (historically followed by mtime, mode and batch
// counters, all space-separated).

// FileInfo is the metadata announced by a ZFILE frame.
type FileInfo struct {
	Name string
	Size int64
}

// BuildFileInfo renders the ZFILE payload for a file: the name, NUL,
// the decimal size, NUL.
func BuildFileInfo(name string, size int64) []byte {
	buf := make([]byte, 0, len(name)+24)
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = strconv.AppendInt(buf, size, 10)
	buf = append(buf, 0)
	return buf
}

// ParseFileInfo extracts the name and size from a ZFILE payload. Extra
// space-separated fields after the size are tolerated and ignored.
// Names are decoded as UTF-8 when valid and as Latin-1 otherwise, so no
// byte value is ever lost.
func ParseFileInfo(payload []byte) (FileInfo, error) {
	nul := bytes.IndexByte(payload, 0)
	if nul <= 0 {
		return FileInfo{}, NewError(ErrMalformedFileName, "missing file name field")
	}
	name := decodeFileName(payload[:nul])

	rest := payload[nul+1:]
	end := 0
	for end < len(rest) && rest[end] != 0 && rest[end] != ' ' {
		end++
	}
	size, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil || size < 0 {
		return FileInfo{}, NewError(ErrMalformedFileSize, "size field is not a decimal integer")
	}

	return FileInfo{Name: name, Size: size}, nil
}

// decodeFileName interprets raw name bytes as UTF-8 when they form a
// valid sequence and falls back to Latin-1, which maps every byte to a
// code point and so preserves the original values.
func decodeFileName(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
