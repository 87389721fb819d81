// Package decode reverses the quoted-printable transport encoding found in
// raw message bodies.
package decode

import (
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"
)

// Result is the structured outcome of a decode. When Err is set, Text holds
// the original input.
type Result struct {
	Text string
	Err  error
}

// Fallback reports whether decoding failed and the original text was kept.
func (r Result) Fallback() bool {
	return r.Err != nil
}

// Decode decodes quoted-printable escapes (=XX) and soft line breaks.
// Invalid UTF-8 in the output is dropped.
func Decode(text string) Result {
	if !strings.Contains(text, "=") {
		return Result{Text: strings.ToValidUTF8(text, "")}
	}

	decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(escapeRaw(text))))
	if err != nil {
		return Result{
			Text: strings.ToValidUTF8(text, ""),
			Err:  fmt.Errorf("decode quoted-printable: %w", err),
		}
	}
	return Result{Text: strings.ToValidUTF8(string(decoded), "")}
}

// Text is Decode without the error detail.
func Text(text string) string {
	return Decode(text).Text
}

// Value decodes loosely typed tabular cells. Anything that is not text
// decodes to "".
func Value(v any) string {
	switch t := v.(type) {
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	case *string:
		if t == nil {
			return ""
		}
		return Text(*t)
	default:
		return ""
	}
}

// escapeRaw re-encodes unescaped 8-bit and control bytes so the strict
// stdlib reader passes them through instead of rejecting the body.
func escapeRaw(text string) string {
	clean := true
	for i := 0; i < len(text); i++ {
		if needsEscape(text[i]) {
			clean = false
			break
		}
	}
	if clean {
		return text
	}

	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(text) + len(text)/2)
	for i := 0; i < len(text); i++ {
		b := text[i]
		if needsEscape(b) {
			sb.WriteByte('=')
			sb.WriteByte(hex[b>>4])
			sb.WriteByte(hex[b&0x0f])
			continue
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

func needsEscape(b byte) bool {
	switch b {
	case '\t', '\r', '\n':
		return false
	}
	return b < ' ' || b > '~'
}
