package logger

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

const harVersion = "1.2"

// HAR is an HTTP Archive 1.2 document holding one page per capture run.
// Only the fields a replayed stream can fill are modelled; the required
// ones are always present, with -1 for unknown timings.
type HAR struct {
	Log struct {
		Version string     `json:"version"`
		Creator harCreator `json:"creator"`
		Pages   []HARPage  `json:"pages"`
		Entries []HAREntry `json:"entries"`
	} `json:"log"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HARPage groups the entries of one run.
type HARPage struct {
	StartedDateTime time.Time      `json:"startedDateTime"`
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	PageTimings     map[string]int `json:"pageTimings"`
}

// HAREntry is one request/response session.
type HAREntry struct {
	Pageref         string      `json:"pageref"`
	StartedDateTime time.Time   `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         harTimings  `json:"timings"`
}

// harMessage holds what requests and responses share.
type harMessage struct {
	HTTPVersion string   `json:"httpVersion"`
	Cookies     []Header `json:"cookies"`
	Headers     []Header `json:"headers"`
	HeadersSize int      `json:"headersSize"`
	BodySize    int      `json:"bodySize"`
}

type harRequest struct {
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	QueryString []Header     `json:"queryString"`
	PostData    *harPostData `json:"postData,omitempty"`
	harMessage
}

type harPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type harResponse struct {
	Status      int        `json:"status"`
	StatusText  string     `json:"statusText"`
	Content     harContent `json:"content"`
	RedirectURL string     `json:"redirectURL"`
	harMessage
}

type harContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
}

type harTimings struct {
	Send    int `json:"send"`
	Wait    int `json:"wait"`
	Receive int `json:"receive"`
}

// NewHAR starts an archive with a single page for run.
func NewHAR(runID, version string, started time.Time) *HAR {
	h := &HAR{}
	h.Log.Version = harVersion
	h.Log.Creator = harCreator{Name: "apiseal", Version: version}
	h.Log.Pages = []HARPage{{
		StartedDateTime: started,
		ID:              runID,
		Title:           "apiseal capture " + runID,
		PageTimings:     map[string]int{"onContentLoad": -1, "onLoad": -1},
	}}
	h.Log.Entries = []HAREntry{}
	return h
}

// Add appends record to the run's page.
func (h *HAR) Add(record *TrafficRecord) {
	req, resp := &record.Request, &record.Response

	entry := HAREntry{
		Pageref:         h.Log.Pages[0].ID,
		StartedDateTime: record.Timestamp,
		Time:            record.DurationMS,
		Request: harRequest{
			Method:      req.Method,
			URL:         absoluteURL(record.Host, req.URL),
			QueryString: queryPairs(req.Query),
			harMessage:  newHARMessage(req.Proto, req.Headers, req.BodySize),
		},
		Response: harResponse{
			Status:      resp.StatusCode,
			RedirectURL: lastHeader(resp.Headers, "Location"),
			Content: harContent{
				Size:     resp.BodySize,
				MimeType: resp.ContentType,
				Text:     resp.Body,
			},
			harMessage: newHARMessage(resp.Proto, resp.Headers, resp.BodySize),
		},
		// The stream only tells when the response arrived.
		Timings: harTimings{Wait: int(record.DurationMS)},
	}
	_, entry.Response.StatusText, _ = strings.Cut(resp.Status, " ")

	if req.BodySize > 0 {
		mimeType := lastHeader(req.Headers, "Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		entry.Request.PostData = &harPostData{MimeType: mimeType, Text: req.Body}
	}
	h.Log.Entries = append(h.Log.Entries, entry)
}

// ToJSON renders the archive.
func (h *HAR) ToJSON() ([]byte, error) {
	return json.MarshalIndent(h, "", "  ")
}

func newHARMessage(proto string, headers []Header, bodySize int) harMessage {
	size := 0
	for _, h := range headers {
		size += len(h.Name) + len(": ") + len(h.Value) + len("\r\n")
	}
	if headers == nil {
		headers = []Header{}
	}
	return harMessage{
		HTTPVersion: proto,
		Cookies:     []Header{},
		Headers:     headers,
		HeadersSize: size,
		BodySize:    bodySize,
	}
}

// queryPairs flattens query values, names sorted and values in order.
func queryPairs(query map[string][]string) []Header {
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := []Header{}
	for _, name := range names {
		for _, value := range query[name] {
			pairs = append(pairs, Header{Name: name, Value: value})
		}
	}
	return pairs
}

func lastHeader(headers []Header, name string) string {
	for i := len(headers) - 1; i >= 0; i-- {
		if strings.EqualFold(headers[i].Name, name) {
			return headers[i].Value
		}
	}
	return ""
}

// absoluteURL joins host and a request target. Replayed traffic is plain
// HTTP.
func absoluteURL(host, target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return "http://" + host + target
}
