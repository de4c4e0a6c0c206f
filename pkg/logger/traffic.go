package logger

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/session"
)

// TrafficRecord represents a single HTTP request/response pair
type TrafficRecord struct {
	Timestamp  time.Time    `json:"timestamp"`
	RunID      string       `json:"run_id"`
	Host       string       `json:"host"`
	Request    HTTPRequest  `json:"request"`
	Response   HTTPResponse `json:"response"`
	DurationMS float64      `json:"duration_ms"`
}

// Header is one header line.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HTTPRequest represents HTTP request details
type HTTPRequest struct {
	Method   string              `json:"method"`
	URL      string              `json:"url"`
	Proto    string              `json:"proto"`
	Path     string              `json:"path"`
	Query    map[string][]string `json:"query,omitempty"`
	Headers  []Header            `json:"headers"`
	Body     string              `json:"body,omitempty"`
	BodySize int                 `json:"body_size"`
}

// HTTPResponse represents HTTP response details
type HTTPResponse struct {
	Proto       string   `json:"proto"`
	Status      string   `json:"status"`
	StatusCode  int      `json:"status_code"`
	Headers     []Header `json:"headers"`
	Body        string   `json:"body,omitempty"`
	BodySize    int      `json:"body_size"`
	ContentType string   `json:"content_type"`
}

// NewTrafficRecord flattens a session. Bodies are decoded and simplified
// keeping keep list items, then cut to maxBody bytes when maxBody > 0.
func NewTrafficRecord(s *session.Session, keep, maxBody int) *TrafficRecord {
	req, resp := s.Request, s.Response

	var query map[string][]string
	if s.Parameters.Len() > 0 {
		query = make(map[string][]string, s.Parameters.Len())
		for pair := s.Parameters.Oldest(); pair != nil; pair = pair.Next() {
			query[pair.Key] = pair.Value
		}
	}

	return &TrafficRecord{
		Timestamp:  req.Timestamp,
		Host:       req.Host,
		DurationMS: float64(resp.Latency.Microseconds()) / 1000,
		Request: HTTPRequest{
			Method:   req.Method,
			URL:      req.URL,
			Proto:    req.Version,
			Path:     req.Path,
			Query:    query,
			Headers:  headerList(req.RawHeaders),
			Body:     truncate(req.Body(keep).Simplified, maxBody),
			BodySize: len(req.RawBody),
		},
		Response: HTTPResponse{
			Proto:       resp.Version,
			Status:      strings.TrimSpace(resp.Status + " " + resp.Reason),
			StatusCode:  resp.StatusCode,
			Headers:     headerList(resp.RawHeaders),
			Body:        truncate(resp.Body(keep).Simplified, maxBody),
			BodySize:    len(resp.RawBody),
			ContentType: resp.Headers.Get("content-type"),
		},
	}
}

func headerList(raw string) []Header {
	fields := httpmsg.ParseFields(raw)
	headers := make([]Header, 0, len(fields))
	for _, f := range fields {
		headers = append(headers, Header{Name: f.Name, Value: f.Value})
	}
	return headers
}

// truncate cuts body to at most max bytes without splitting a rune.
func truncate(body string, max int) string {
	if max <= 0 || len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "... (truncated)"
}
