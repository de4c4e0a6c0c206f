package logger

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httpseal/apiseal/internal/config"
	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/session"
)

func testSession(t *testing.T, contentType, body string) *session.Session {
	t.Helper()
	req, err := httpmsg.NewRequest([]byte("POST /api/users?id=1&tag=a&tag=b HTTP/1.1\r\nHost: api.example.com\r\nContent-Type: application/json\r\n\r\n{\"name\":\"x\"}"),
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	resp, err := httpmsg.NewResponse([]byte("HTTP/1.1 201 Created\r\nContent-Type: "+contentType+"\r\n\r\n"+body), 1500*time.Microsecond)
	require.NoError(t, err)
	return session.Pair(req, resp)
}

func newTestLogger(t *testing.T, format config.OutputFormat) (*TrafficLogger, string) {
	t.Helper()
	cfg := config.Default()
	cfg.OutputFile = filepath.Join(t.TempDir(), "traffic."+string(format))
	cfg.OutputFormat = format
	cfg.ExcludeContentTypes = []string{"image/"}

	l, err := NewTrafficLogger(cfg, Nop(), "test")
	require.NoError(t, err)
	return l, cfg.OutputFile
}

func TestTrafficLoggerJSON(t *testing.T) {
	l, path := newTestLogger(t, config.FormatJSON)
	require.NoError(t, l.Record(testSession(t, "application/json", `{"id":[1,2,3]}`)))
	require.NoError(t, l.Record(testSession(t, "image/png", "PNG")))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "excluded content types are not recorded")

	var record TrafficRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, l.RunID(), record.RunID)
	assert.Equal(t, "api.example.com", record.Host)
	assert.Equal(t, "/api/users", record.Request.Path)
	assert.Equal(t, []string{"a", "b"}, record.Request.Query["tag"])
	assert.Equal(t, "201 Created", record.Response.Status)
	assert.Equal(t, 1.5, record.DurationMS)
	assert.Equal(t, "{\n  \"id\": [\n    1\n  ]\n}", record.Response.Body)
}

func TestTrafficLoggerCSV(t *testing.T) {
	l, path := newTestLogger(t, config.FormatCSV)
	require.NoError(t, l.Record(testSession(t, "application/json", `{}`)))
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run_id", rows[0][1])
	assert.Equal(t, []string{"POST", "/api/users?id=1&tag=a&tag=b", "201"}, rows[1][3:6])
	assert.Equal(t, "1.500", rows[1][10])
}

func TestTrafficLoggerHAR(t *testing.T) {
	l, path := newTestLogger(t, config.FormatHAR)
	require.NoError(t, l.Record(testSession(t, "application/json", `{"ok":true}`)))
	require.NoError(t, l.Record(testSession(t, "application/json", `{"ok":false}`)))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var har HAR
	require.NoError(t, json.Unmarshal(data, &har))
	assert.Equal(t, "1.2", har.Log.Version)
	require.Len(t, har.Log.Pages, 1)
	require.Len(t, har.Log.Entries, 2)

	entry := har.Log.Entries[0]
	assert.Equal(t, har.Log.Pages[0].ID, entry.Pageref)
	assert.Equal(t, "http://api.example.com/api/users?id=1&tag=a&tag=b", entry.Request.URL)
	assert.Equal(t, []Header{{Name: "id", Value: "1"}, {Name: "tag", Value: "a"}, {Name: "tag", Value: "b"}}, entry.Request.QueryString)
	require.NotNil(t, entry.Request.PostData)
	assert.Equal(t, "application/json", entry.Request.PostData.MimeType)
	assert.Equal(t, 201, entry.Response.Status)
	assert.Equal(t, "Created", entry.Response.StatusText)
	assert.Equal(t, 1, entry.Timings.Wait)
	assert.Equal(t, "HTTP/1.1", entry.Response.HTTPVersion)
	assert.Empty(t, entry.Response.Cookies)
}

func TestTrafficLoggerText(t *testing.T) {
	l, path := newTestLogger(t, config.FormatText)
	require.NoError(t, l.Record(testSession(t, "application/json", `{}`)))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[2024-03-01 10:00:00] api.example.com POST /api/users?id=1&tag=a&tag=b -> HTTP/1.1 201 Created (application/json, 2 bytes, 1.500ms)\n", string(data))
}

func TestTrafficLoggerWithoutOutput(t *testing.T) {
	l, err := NewTrafficLogger(config.Default(), nil, "test")
	require.NoError(t, err)
	assert.NoError(t, l.Record(testSession(t, "application/json", `{}`)))
	assert.NoError(t, l.Close())
}
