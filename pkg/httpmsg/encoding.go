package httpmsg

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// ErrUnsupportedCoding is returned by Decompress for content codings it
// cannot undo.
var ErrUnsupportedCoding = errors.New("unsupported content coding")

type decoderFunc func(io.Reader) (io.ReadCloser, error)

var contentDecoders = map[string]decoderFunc{
	"gzip":    gzipDecoder,
	"x-gzip":  gzipDecoder,
	"deflate": deflateDecoder,
	"br":      brotliDecoder,
}

// ContentCodings lists the codings of a Content-Encoding value in the order
// they were applied, lower-cased, without "identity".
func ContentCodings(contentEncoding string) []string {
	var codings []string
	for _, c := range strings.Split(contentEncoding, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || c == "identity" {
			continue
		}
		codings = append(codings, c)
	}
	return codings
}

// Decompress undoes the codings of contentEncoding, the last applied first.
func Decompress(body []byte, contentEncoding string) ([]byte, error) {
	codings := ContentCodings(contentEncoding)
	for i := len(codings) - 1; i >= 0 && len(body) > 0; i-- {
		open, ok := contentDecoders[codings[i]]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCoding, codings[i])
		}

		r, err := open(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", codings[i], err)
		}
		body, err = io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", codings[i], err)
		}
	}
	return body, nil
}

func gzipDecoder(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// deflateDecoder accepts zlib-wrapped and raw deflate data; servers
// disagree on which one "deflate" means.
func deflateDecoder(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	if h, err := br.Peek(2); err == nil && isZlibHeader([2]byte(h)) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// isZlibHeader checks the RFC 1950 CMF/FLG pair.
func isZlibHeader(h [2]byte) bool {
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

func brotliDecoder(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(r)), nil
}
