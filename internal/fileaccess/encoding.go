package fileaccess

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// BOM (Byte Order Mark) constants
var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeContent converts raw file bytes to a string.
// UTF-8 BOMs are stripped and UTF-16 content (detected by its BOM) is
// converted to UTF-8. Content without a BOM is returned as-is.
func DecodeContent(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), nil

	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeUTF16(data, unicode.LittleEndian)

	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeUTF16(data, unicode.BigEndian)

	default:
		return string(data), nil
	}
}

// decodeUTF16 converts UTF-16 bytes (including the BOM) to a UTF-8 string.
func decodeUTF16(data []byte, endianness unicode.Endianness) (string, error) {
	decoder := unicode.UTF16(endianness, unicode.UseBOM).NewDecoder()
	decoded, err := decoder.Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding utf-16 content: %w", err)
	}
	return string(decoded), nil
}
