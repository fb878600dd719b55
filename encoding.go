package nodestreams

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"unicode/utf16"
)

// BufferEncoding is the sentinel encoding name indicating a chunk is already
// raw bytes and requires no conversion.
const BufferEncoding = "buffer"

// normalizeEncoding maps the recognized encoding aliases to their canonical
// names. An empty string normalizes to utf8. The second return value is
// false for unrecognized names.
func normalizeEncoding(encoding string) (string, bool) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
		return "utf8", true
	case "ascii":
		return "ascii", true
	case "latin1", "binary":
		return "latin1", true
	case "base64":
		return "base64", true
	case "base64url":
		return "base64url", true
	case "hex":
		return "hex", true
	case "utf16le", "utf-16le", "ucs2", "ucs-2":
		return "utf16le", true
	case BufferEncoding:
		return BufferEncoding, true
	default:
		return "", false
	}
}

// IsEncoding reports whether name is a recognized character encoding
// (including the "buffer" sentinel).
func IsEncoding(name string) bool {
	_, ok := normalizeEncoding(name)
	return ok
}

// decodeString converts a string chunk to raw bytes per the (canonical)
// encoding. Mirrors the upstream runtime's byte-container string decoding.
func decodeString(s, encoding string) ([]byte, error) {
	switch encoding {
	case "utf8", BufferEncoding:
		return []byte(s), nil
	case "ascii":
		b := make([]byte, 0, len(s))
		for _, r := range s {
			b = append(b, byte(r&0x7f))
		}
		return b, nil
	case "latin1":
		b := make([]byte, 0, len(s))
		for _, r := range s {
			b = append(b, byte(r))
		}
		return b, nil
	case "base64":
		return decodeBase64(s, base64.StdEncoding)
	case "base64url":
		return decodeBase64(s, base64.URLEncoding)
	case "hex":
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, newInvalidArgValue("chunk", s, "invalid hex input")
		}
		return b, nil
	case "utf16le":
		units := utf16.Encode([]rune(s))
		b := make([]byte, len(units)*2)
		for i, u := range units {
			binary.LittleEndian.PutUint16(b[i*2:], u)
		}
		return b, nil
	default:
		return nil, newUnknownEncoding(encoding)
	}
}

// decodeBase64 tolerates both padded and unpadded input, like the upstream
// byte-container decoder.
func decodeBase64(s string, enc *base64.Encoding) ([]byte, error) {
	trimmed := strings.TrimRight(s, "=")
	b, err := enc.WithPadding(base64.NoPadding).DecodeString(trimmed)
	if err != nil {
		return nil, newInvalidArgValue("chunk", s, "invalid base64 input")
	}
	return b, nil
}
