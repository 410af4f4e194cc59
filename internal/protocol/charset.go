package protocol

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const titleReserved = " #%&+?/"

// DecodeCP1251 converts a Windows-1251 payload to UTF-8.
func DecodeCP1251(b []byte) string {
	out, err := charmap.Windows1251.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// EncodeCP1251 converts UTF-8 text to Windows-1251. Runes without a mapping
// are replaced with the charset substitution byte.
func EncodeCP1251(s string) []byte {
	out, err := encoding.ReplaceUnsupported(charmap.Windows1251.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// EscapeTitle renders a title the way the controller expects it in a config
// write: every cp1251 byte above 127 and every reserved character becomes %XX.
func EscapeTitle(title string) string {
	var b strings.Builder
	for _, c := range EncodeCP1251(title) {
		if c > 127 || strings.IndexByte(titleReserved, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// unescape percent-decodes raw bytes, leaving malformed sequences untouched,
// and decodes the result from cp1251.
func unescape(raw []byte) string {
	buf := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '+':
			buf = append(buf, ' ')
		case c == '%' && i+2 < len(raw) && isHex(raw[i+1]) && isHex(raw[i+2]):
			buf = append(buf, unhex(raw[i+1])<<4|unhex(raw[i+2]))
			i += 2
		default:
			buf = append(buf, c)
		}
	}
	return DecodeCP1251(buf)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
