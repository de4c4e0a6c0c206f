package httpmsg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/httpseal/apiseal/pkg/schema"
)

// ErrMalformedStartLine is returned for request or status lines that cannot be split.
var ErrMalformedStartLine = errors.New("malformed start line")

// Kind tells requests and responses apart.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindResponse
)

// Message is the part shared by requests and responses.
type Message struct {
	Kind       Kind
	Payload    []byte
	StartLine  string
	RawHeaders string
	Headers    Headers
	RawBody    []byte

	body *Body
}

// Body holds the values derived from a message body for one keep setting.
type Body struct {
	Keep       int
	Decoded    string
	Simplified string
	// Value is the simplified JSON value, nil when the body is not JSON.
	Value  any
	Schema *schema.Schema
	// Err is a non-fatal decoding problem, see DecodeBody.
	Err error
}

// IsJSON reports whether the decoded body parsed as JSON.
func (b *Body) IsJSON() bool {
	return b.Schema != nil
}

// Body decodes, simplifies and fingerprints the message body. The result is
// cached until it is asked for with a different keep value. Messages are not
// safe for concurrent use.
func (m *Message) Body(keep int) *Body {
	if m.body != nil && m.body.Keep == keep {
		return m.body
	}

	decoded, err := DecodeBody(m.Headers, m.RawBody)
	b := &Body{Keep: keep, Decoded: decoded, Simplified: decoded, Err: err}
	if v, ok := ParseJSON(decoded); ok {
		b.Value = Simplify(v, keep)
		b.Simplified = EncodeJSON(b.Value)
		b.Schema = schema.Build(b.Value)
	}
	m.body = b
	return b
}

// ContentType returns the Content-Type header or "N/A".
func (m *Message) ContentType() string {
	if ct := m.Headers.Get("content-type"); ct != "" {
		return ct
	}
	return "N/A"
}

func newMessage(kind Kind, payload []byte) Message {
	startLine, rawHeaders, body := Split(payload)
	if kind == KindRequest {
		rawHeaders = NormalizeForwardedAddress(rawHeaders)
	}
	return Message{
		Kind:       kind,
		Payload:    payload,
		StartLine:  startLine,
		RawHeaders: rawHeaders,
		Headers:    ParseHeaders(rawHeaders),
		RawBody:    body,
	}
}

// Request is a captured HTTP request.
type Request struct {
	Message
	Method    string
	URL       string
	Version   string
	Path      string
	Query     string
	Host      string
	Timestamp time.Time
}

// NewRequest parses a raw request captured at timestamp.
func NewRequest(payload []byte, timestamp time.Time) (*Request, error) {
	msg := newMessage(KindRequest, payload)

	parts := strings.Split(msg.StartLine, " ")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedStartLine, msg.StartLine)
	}

	req := &Request{
		Message:   msg,
		Method:    parts[0],
		URL:       parts[1],
		Version:   parts[2],
		Host:      msg.Headers.Get("host"),
		Timestamp: timestamp,
	}
	if req.Host == "" {
		req.Host = "n/a"
	}
	req.Path, req.Query, _ = strings.Cut(req.URL, "?")
	return req, nil
}

// String renders the capture time and request line.
func (r *Request) String() string {
	return r.Timestamp.Format(time.DateTime) + " " + r.StartLine
}

// Response is a captured HTTP response.
type Response struct {
	Message
	Version    string
	Status     string
	StatusCode int
	Reason     string
	Latency    time.Duration
}

// NewResponse parses a raw response that took latency to arrive.
func NewResponse(payload []byte, latency time.Duration) (*Response, error) {
	msg := newMessage(KindResponse, payload)

	parts := strings.SplitN(msg.StartLine, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedStartLine, msg.StartLine)
	}

	resp := &Response{
		Message: msg,
		Version: parts[0],
		Status:  parts[1],
		Latency: latency,
	}
	if len(parts) == 3 {
		resp.Reason = parts[2]
	}
	resp.StatusCode, _ = strconv.Atoi(resp.Status)
	return resp, nil
}

// String renders the latency in seconds and the status line.
func (r *Response) String() string {
	return fmt.Sprintf("%.3f %s", r.Latency.Seconds(), r.StartLine)
}
