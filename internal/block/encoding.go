package block

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// DecodeText converts raw bytes to UTF-8 per the encoding name accepted by
// the block reader interface: utf-8, utf-16le, utf-16be, shift_jis (aliases
// sjis, cp932, windows-31j), windows-1252, auto. Unknown values default to
// utf-8 lossy, matching the reader contract.
func DecodeText(raw []byte, enc string) string {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "utf-16le":
		return decodeWith(raw, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM))
	case "utf-16be":
		return decodeWith(raw, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM))
	case "shift_jis", "sjis", "cp932", "windows-31j":
		return decodeWith(raw, japanese.ShiftJIS)
	case "windows-1252":
		return decodeWith(raw, charmap.Windows1252)
	case "auto":
		return sniffAndDecode(raw)
	case "utf-8", "":
		return lossyUTF8(raw)
	default:
		return lossyUTF8(raw)
	}
}

func decodeWith(raw []byte, e encoding.Encoding) string {
	out, err := e.NewDecoder().Bytes(raw)
	if err != nil {
		return lossyUTF8(raw)
	}
	return string(out)
}

func sniffAndDecode(raw []byte) string {
	switch {
	case bytes.HasPrefix(raw, []byte{0xff, 0xfe}):
		return decodeWith(raw[2:], unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM))
	case bytes.HasPrefix(raw, []byte{0xfe, 0xff}):
		return decodeWith(raw[2:], unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM))
	case bytes.HasPrefix(raw, []byte{0xef, 0xbb, 0xbf}):
		return lossyUTF8(raw[3:])
	default:
		return lossyUTF8(raw)
	}
}

// lossyUTF8 passes through already-valid UTF-8 and otherwise replaces
// invalid sequences rune-by-rune, matching "utf-8 lossy" semantics without
// pulling in a dedicated charset-detection library (see DESIGN.md).
func lossyUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		b.WriteRune(r)
		raw = raw[size:]
	}
	return b.String()
}
