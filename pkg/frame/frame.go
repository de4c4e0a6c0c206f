// Package frame decodes the GoReplay capture stream: one hex-encoded record
// per line, each a "<type> <id> <timestamp> [<latency>]" header line followed
// by the raw HTTP payload.
package frame

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the record type tag.
type Kind int

const (
	KindRequest  Kind = 1
	KindResponse Kind = 2
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

var (
	ErrBadHex          = errors.New("record is not valid hex")
	ErrUnknownType     = errors.New("unknown record type")
	ErrMalformedHeader = errors.New("malformed record header")
)

// DecodeError describes a record that was skipped. It never ends a stream.
type DecodeError struct {
	Header string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Header == "" {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return fmt.Sprintf("decode frame %q: %v", e.Header, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Frame is one decoded capture record.
type Frame struct {
	Kind Kind
	// ID correlates a request with its response.
	ID string
	// Timestamp in nanoseconds since the epoch. GoReplay copies the request
	// timestamp onto the response.
	Timestamp uint64
	// Latency in nanoseconds, response frames only.
	Latency uint64
	Payload []byte
}

// Time returns the timestamp as a time.Time.
func (f *Frame) Time() time.Time {
	return time.Unix(0, int64(f.Timestamp))
}

// Duration returns the latency as a time.Duration.
func (f *Frame) Duration() time.Duration {
	return time.Duration(f.Latency)
}

// Decode decodes one hex-encoded record line.
func Decode(line []byte) (*Frame, error) {
	line = bytes.TrimRight(line, "\r\n")

	packet := make([]byte, hex.DecodedLen(len(line)))
	if _, err := hex.Decode(packet, line); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrBadHex, err)}
	}

	header, payload, _ := bytes.Cut(packet, []byte("\n"))
	return parse(string(header), payload)
}

func parse(header string, payload []byte) (*Frame, error) {
	tokens := strings.Split(header, " ")

	var f Frame
	switch tokens[0] {
	case "1":
		f.Kind = KindRequest
		if len(tokens) != 3 {
			return nil, &DecodeError{Header: header, Err: ErrMalformedHeader}
		}
	case "2":
		f.Kind = KindResponse
		if len(tokens) != 4 {
			return nil, &DecodeError{Header: header, Err: ErrMalformedHeader}
		}
	default:
		return nil, &DecodeError{Header: header, Err: ErrUnknownType}
	}

	f.ID = tokens[1]
	if f.ID == "" {
		return nil, &DecodeError{Header: header, Err: ErrMalformedHeader}
	}

	var err error
	if f.Timestamp, err = strconv.ParseUint(tokens[2], 10, 64); err != nil {
		return nil, &DecodeError{Header: header, Err: fmt.Errorf("%w: timestamp: %v", ErrMalformedHeader, err)}
	}
	if f.Kind == KindResponse {
		if f.Latency, err = strconv.ParseUint(tokens[3], 10, 64); err != nil {
			return nil, &DecodeError{Header: header, Err: fmt.Errorf("%w: latency: %v", ErrMalformedHeader, err)}
		}
	}

	f.Payload = payload
	return &f, nil
}

// Seconds converts nanoseconds to seconds rounded to three decimals, for display.
func Seconds(ns uint64) float64 {
	return math.Round(float64(ns)/1e6) / 1e3
}
