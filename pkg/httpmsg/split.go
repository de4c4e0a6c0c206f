// Package httpmsg normalizes raw HTTP/1.x messages captured off the wire:
// start line and header splitting, header folding, transfer and content
// decoding, charset fallback and JSON body simplification.
package httpmsg

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// Split separates a raw message into its start line, raw header block and body.
// The start line is decoded as UTF-8 with invalid bytes replaced, the header
// block as ISO-8859-1, and the body is returned untouched.
func Split(raw []byte) (startLine, rawHeaders string, body []byte) {
	first, rest, _ := bytes.Cut(raw, crlf)

	var headers []byte
	if bytes.HasPrefix(rest, crlf) {
		// No header lines at all
		body = rest[len(crlf):]
	} else {
		headers, body, _ = bytes.Cut(rest, crlfcrlf)
	}

	return decodeLossy(first), decodeLatin1(headers), body
}

// decodeLossy decodes b as UTF-8, replacing invalid sequences with U+FFFD.
func decodeLossy(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

// decodeLatin1 maps every byte to the code point of the same value.
func decodeLatin1(b []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return decodeLossy(b)
	}
	return string(out)
}
