package httpmsg

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrMalformedChunk is returned when chunked transfer framing is broken.
var ErrMalformedChunk = errors.New("malformed chunked body")

// BodyDecodeError reports a body that could only be partially decoded.
// The decoder still returns a usable body alongside it.
type BodyDecodeError struct {
	Stage string
	Err   error
}

func (e *BodyDecodeError) Error() string {
	return fmt.Sprintf("decode body (%s): %v", e.Stage, e.Err)
}

func (e *BodyDecodeError) Unwrap() error {
	return e.Err
}

// DecodeBody undoes transfer and content codings and decodes the result to
// text. Broken chunked framing yields a *BodyDecodeError together with the
// raw bytes decoded as text; decompression failures keep the compressed
// bytes silently, since captured traffic is often truncated.
func DecodeBody(headers Headers, body []byte) (string, error) {
	var decodeErr error

	if isChunked(headers.Get("transfer-encoding")) {
		dechunked, err := Dechunk(body)
		if err != nil {
			decodeErr = &BodyDecodeError{Stage: "chunked", Err: err}
		} else {
			body = dechunked
		}
	}

	if encoding := headers.Get("content-encoding"); encoding != "" {
		if plain, err := Decompress(body, encoding); err == nil {
			body = plain
		}
	}

	return decodeText(body, headers.Get("content-type")), decodeErr
}

func isChunked(transferEncoding string) bool {
	codings := strings.Split(transferEncoding, ",")
	last := strings.TrimSpace(codings[len(codings)-1])
	return strings.EqualFold(last, "chunked")
}

// Dechunk concatenates the payloads of a chunked transfer-coded body.
// Reading stops at the zero-length chunk or when the input runs out.
func Dechunk(body []byte) ([]byte, error) {
	var out bytes.Buffer
	for len(body) > 0 {
		line, rest, found := bytes.Cut(body, crlf)
		if !found {
			return nil, fmt.Errorf("%w: chunk size line without CRLF", ErrMalformedChunk)
		}

		sizeField, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseUint(strings.TrimSpace(string(sizeField)), 16, 63)
		if err != nil {
			return nil, fmt.Errorf("%w: bad chunk size %q", ErrMalformedChunk, line)
		}
		if size == 0 {
			break
		}
		if uint64(len(rest)) < size {
			return nil, fmt.Errorf("%w: chunk of %d bytes truncated to %d", ErrMalformedChunk, size, len(rest))
		}

		out.Write(rest[:size])
		rest = rest[size:]

		switch {
		case len(rest) == 0:
		case bytes.HasPrefix(rest, crlf):
			rest = rest[len(crlf):]
		default:
			return nil, fmt.Errorf("%w: missing CRLF after chunk data", ErrMalformedChunk)
		}
		body = rest
	}
	return out.Bytes(), nil
}

// decodeText honours a non UTF-8 charset declared in contentType and
// otherwise decodes as UTF-8 with replacement.
func decodeText(body []byte, contentType string) string {
	if name := charsetOf(contentType); name != "" {
		if enc, canonical := charset.Lookup(name); enc != nil && canonical != "utf-8" {
			if out, err := enc.NewDecoder().Bytes(body); err == nil {
				return string(out)
			}
		}
	}
	return decodeLossy(body)
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
