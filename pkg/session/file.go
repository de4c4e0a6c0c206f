package session

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/httpseal/apiseal/pkg/httpmsg"
)

// FileExt is the extension of session files.
const FileExt = ".api"

// FormatError reports a malformed session file.
type FormatError struct {
	Name   string
	Stage  int
	Reason string
}

func (e *FormatError) Error() string {
	name := e.Name
	if name == "" {
		name = "session file"
	}
	return fmt.Sprintf("%s: format error (%d): %s", name, e.Stage, e.Reason)
}

// Stages of a session file, used in FormatError.
const (
	StageHeaders = iota
	StageRequest
	StageSeparator
	StageResponse
)

// WriteFile writes one session in the session file format.
func WriteFile(w io.Writer, req *httpmsg.Request, resp *httpmsg.Response) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Request-Time: %s\r\n", req.Timestamp.Format(time.DateTime))
	fmt.Fprintf(bw, "Latency: %.3f\r\n", resp.Latency.Seconds())
	bw.WriteString("\r\n")
	fmt.Fprintf(bw, "Request %d\r\n", len(req.Payload))
	bw.Write(req.Payload)
	bw.WriteString("\r\n")
	fmt.Fprintf(bw, "Response %d\r\n", len(resp.Payload))
	bw.Write(resp.Payload)
	return bw.Flush()
}

// ReadFile reads one session and prepares both bodies for keep list items.
func ReadFile(r io.Reader, keep int) (*Session, error) {
	br := bufio.NewReader(r)

	meta, err := readMeta(br)
	if err != nil {
		return nil, err
	}

	var timestamp time.Time
	if v := meta["request-time"]; v != "" {
		timestamp, _ = time.ParseInLocation(time.DateTime, v, time.Local)
	}
	var latency time.Duration
	if v := meta["latency"]; v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			latency = time.Duration(math.Round(secs * float64(time.Second)))
		}
	}

	reqPayload, err := readPayload(br, "Request ", StageRequest)
	if err != nil {
		return nil, err
	}

	line, err := br.ReadString('\n')
	if line != "\r\n" {
		if err == nil {
			err = fmt.Errorf("got %q", line)
		}
		return nil, &FormatError{Stage: StageSeparator, Reason: "expected blank line after request: " + err.Error()}
	}

	respPayload, err := readPayload(br, "Response ", StageResponse)
	if err != nil {
		return nil, err
	}

	req, err := httpmsg.NewRequest(reqPayload, timestamp)
	if err != nil {
		return nil, &FormatError{Stage: StageRequest, Reason: err.Error()}
	}
	resp, err := httpmsg.NewResponse(respPayload, latency)
	if err != nil {
		return nil, &FormatError{Stage: StageResponse, Reason: err.Error()}
	}

	req.Body(keep)
	resp.Body(keep)
	return Pair(req, resp), nil
}

// ReadFilePath opens and reads a session file.
func ReadFilePath(path string, keep int) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ReadFile(f, keep)
	if fe, ok := err.(*FormatError); ok {
		fe.Name = path
	}
	return s, err
}

func readMeta(br *bufio.Reader) (map[string]string, error) {
	meta := make(map[string]string)
	for {
		line, err := br.ReadString('\n')
		if line == "\r\n" {
			return meta, nil
		}
		if err != nil {
			return nil, &FormatError{Stage: StageHeaders, Reason: "headers not terminated by a blank line"}
		}
		name, value, _ := strings.Cut(line, ":")
		meta[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
}

func readPayload(br *bufio.Reader, prefix string, stage int) ([]byte, error) {
	line, err := br.ReadString('\n')
	if !strings.HasPrefix(line, prefix) {
		reason := fmt.Sprintf("expected %q line", strings.TrimSpace(prefix))
		if err != nil {
			reason += ": " + err.Error()
		}
		return nil, &FormatError{Stage: stage, Reason: reason}
	}

	length, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
	if convErr != nil || length < 0 {
		return nil, &FormatError{Stage: stage, Reason: fmt.Sprintf("bad length in %q", strings.TrimSpace(line))}
	}

	// The count is untrusted, so the buffer only grows with the bytes present.
	payload, err := io.ReadAll(io.LimitReader(br, int64(length)))
	if err != nil {
		return nil, &FormatError{Stage: stage, Reason: err.Error()}
	}
	if len(payload) < length {
		return nil, &FormatError{Stage: stage, Reason: fmt.Sprintf("payload shorter than %d bytes", length)}
	}
	return payload, nil
}
