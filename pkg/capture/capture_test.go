package capture

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httpseal/apiseal/pkg/logger"
	"github.com/httpseal/apiseal/pkg/session"
)

func requestRecord(id, target string) string {
	payload := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: api.example.com\r\n\r\n", target)
	return hex.EncodeToString([]byte("1 "+id+" 1700000000000000000\n"+payload)) + "\n"
}

func responseRecord(id, status, body string) string {
	payload := fmt.Sprintf("HTTP/1.1 %s\r\nContent-Type: application/json\r\n\r\n%s", status, body)
	return hex.EncodeToString([]byte("2 "+id+" 1700000000000000000 2400000\n"+payload)) + "\n"
}

type recorder struct {
	sessions []*session.Session
	closed   bool
	fail     bool
}

func (r *recorder) Record(s *session.Session) error {
	if r.fail {
		return errors.New("disk full")
	}
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func TestCapturerRun(t *testing.T) {
	stream := strings.Join([]string{
		requestRecord("a", "/users?id=1"),
		"not hex at all\n",
		"\n",
		requestRecord("b", "/orders"),
		responseRecord("b", "200 OK", `{"code":0}`),
		responseRecord("zzz", "200 OK", `{}`),
		responseRecord("a", "404 Not Found", `{"code":404}`),
		hex.EncodeToString([]byte("3 x 1\n")) + "\n",
	}, "")

	rec := &recorder{}
	c := New(NewCache(DefaultCacheSize, nil), logger.Nop(), rec)
	require.NoError(t, c.Run(context.Background(), strings.NewReader(stream)))

	require.Len(t, rec.sessions, 2)
	assert.Equal(t, "/orders", rec.sessions[0].Request.Path)
	assert.Equal(t, 200, rec.sessions[0].Response.StatusCode)
	assert.Equal(t, 2400*time.Microsecond, rec.sessions[0].Response.Latency)
	assert.Equal(t, "/users", rec.sessions[1].Request.Path)
	assert.Equal(t, 404, rec.sessions[1].Response.StatusCode)
	assert.True(t, rec.closed)

	stats := c.Stats()
	assert.Equal(t, 5, stats.Frames)
	assert.Equal(t, 2, stats.Admitted)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 1, stats.Missed)
	assert.Equal(t, 2, stats.DecodeErrors)
}

func TestCapturerEvictionLosesResponse(t *testing.T) {
	stream := requestRecord("A", "/a") + requestRecord("B", "/b") +
		responseRecord("A", "200 OK", `{}`) + responseRecord("B", "200 OK", `{}`)

	rec := &recorder{}
	c := New(NewCache(1, nil), logger.Nop(), rec)
	require.NoError(t, c.Run(context.Background(), strings.NewReader(stream)))

	require.Len(t, rec.sessions, 1)
	assert.Equal(t, "/b", rec.sessions[0].Request.Path)
	assert.Equal(t, 1, c.Stats().Evicted)
	assert.Equal(t, 1, c.Stats().Missed)
}

func TestCapturerFilteredRequestIsNotMatched(t *testing.T) {
	filter, err := NewFilter(nil, []string{"/api/*"})
	require.NoError(t, err)

	stream := requestRecord("A", "/static/x.js") + responseRecord("A", "200 OK", "")
	rec := &recorder{}
	c := New(NewCache(4, filter), logger.Nop(), rec)
	require.NoError(t, c.Run(context.Background(), strings.NewReader(stream)))

	assert.Empty(t, rec.sessions)
	assert.Equal(t, 1, c.Stats().Rejected)
	assert.Equal(t, 1, c.Stats().Missed)
}

func TestCapturerSinkErrorsAreNotFatal(t *testing.T) {
	stream := requestRecord("A", "/a") + responseRecord("A", "200 OK", `{}`)

	failing := &recorder{fail: true}
	ok := &recorder{}
	c := New(NewCache(4, nil), logger.Nop(), failing, ok)
	require.NoError(t, c.Run(context.Background(), strings.NewReader(stream)))

	assert.Len(t, ok.sessions, 1)
	assert.Equal(t, 1, c.Stats().SinkErrors)
}

func TestCapturerCanceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	c := New(NewCache(4, nil), logger.Nop(), rec)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx, pr) }()

	_, err := io.WriteString(pw, requestRecord("A", "/a"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, rec.closed)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestCapturerReadError(t *testing.T) {
	c := New(NewCache(4, nil), logger.Nop())
	err := c.Run(context.Background(), failingReader{})
	assert.ErrorContains(t, err, "broken pipe")
}
