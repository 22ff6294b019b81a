package telemetry

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// TextDecoder is one strategy in the text decoding chain.
type TextDecoder interface {
	// Name identifies the encoding, e.g. "utf-8".
	Name() string
	// Decode converts raw to text, reporting false if raw is not valid in
	// this encoding.
	Decode(raw []byte) (string, bool)
}

var (
	// UTF8 accepts only well-formed UTF-8.
	UTF8 TextDecoder = utf8Decoder{}
	// GBK is the legacy simplified Chinese multi-byte encoding used by some
	// sensor firmware for its status messages.
	GBK TextDecoder = strictDecoder{name: "gbk", enc: simplifiedchinese.GBK}
	// Latin1 maps every byte to a rune. It is not part of the default chain
	// because it never fails and would hide the hex fallback.
	Latin1 TextDecoder = strictDecoder{name: "latin-1", enc: charmap.ISO8859_1}
)

// DefaultTextDecoders returns the chain tried for every line: UTF-8 first,
// then GBK.
func DefaultTextDecoders() []TextDecoder {
	return []TextDecoder{UTF8, GBK}
}

// HexEncoding is the Encoding recorded on a DecodedLine when every text
// strategy failed.
const HexEncoding = "hex"

// DecodedLine is the text form of one physical line.
type DecodedLine struct {
	Raw      []byte
	Text     string
	Encoding string
	// Hex is set when no strategy matched and Text holds HexString(Raw).
	Hex bool
}

// DecodeText tries each decoder in order, stopping at the first success. If
// none succeeds the line is rendered with HexString.
func DecodeText(raw []byte, decoders []TextDecoder) DecodedLine {
	for _, dec := range decoders {
		if text, ok := dec.Decode(raw); ok {
			return DecodedLine{Raw: raw, Text: text, Encoding: dec.Name()}
		}
	}
	return DecodedLine{Raw: raw, Text: HexString(raw), Encoding: HexEncoding, Hex: true}
}

// HexString renders raw as uppercase, space separated byte pairs, e.g.
// "FF FE 0A".
func HexString(raw []byte) string {
	const digits = "0123456789ABCDEF"
	if len(raw) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw)*3 - 1)
	for i, c := range raw {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(digits[c>>4])
		b.WriteByte(digits[c&0x0f])
	}
	return b.String()
}

// DisplayLine formats raw text for an append-only display, adding the
// trailing newline if it is missing.
func DisplayLine(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

type utf8Decoder struct{}

func (utf8Decoder) Name() string { return "utf-8" }

func (utf8Decoder) Decode(raw []byte) (string, bool) {
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

// strictDecoder wraps an x/text encoding and treats any replacement rune in
// the output as a decode failure, since x/text substitutes U+FFFD instead of
// returning an error for invalid sequences. Output holding control characters
// is rejected too (see isText).
type strictDecoder struct {
	name string
	enc  encoding.Encoding
}

func (d strictDecoder) Name() string { return d.name }

func (d strictDecoder) Decode(raw []byte) (string, bool) {
	out, err := d.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	text := string(out)
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", false
	}
	return text, isText(text)
}

// isText rejects control characters other than tab and line terminators. It
// guards the legacy encodings only: binary float frames are often valid GBK
// but carry zero bytes, and must still reach the binary fallback.
func isText(s string) bool {
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r < 0x20 || r == 0x7f:
			return false
		}
	}
	return true
}
