package logger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/httpseal/apiseal/internal/config"
	"github.com/httpseal/apiseal/pkg/session"
)

// TrafficLogger writes every recorded session to the traffic output file in
// the configured format. HAR output is buffered and written on Close.
type TrafficLogger struct {
	config     *config.Config
	logger     Logger
	version    string
	outputFile *os.File
	csvWriter  *csv.Writer
	har        *HAR
	runID      string

	mu sync.Mutex
}

// NewTrafficLogger opens cfg.OutputFile. Traffic logging is disabled when
// no output file is configured.
func NewTrafficLogger(cfg *config.Config, log Logger, version string) (*TrafficLogger, error) {
	if log == nil {
		log = Nop()
	}
	l := &TrafficLogger{
		config:  cfg,
		logger:  log,
		version: version,
		runID:   uuid.NewString(),
	}

	if cfg.OutputFile != "" {
		if err := l.setupFileOutput(); err != nil {
			return nil, fmt.Errorf("failed to setup file output: %w", err)
		}
	}
	return l, nil
}

// RunID identifies this capture run in every record.
func (l *TrafficLogger) RunID() string {
	return l.runID
}

// setupFileOutput initializes file output based on format
func (l *TrafficLogger) setupFileOutput() error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if l.config.OutputFormat == config.FormatHAR {
		// A HAR file is one JSON document.
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	var err error
	l.outputFile, err = os.OpenFile(l.config.OutputFile, flags, 0644)
	if err != nil {
		return err
	}

	switch l.config.OutputFormat {
	case config.FormatCSV:
		l.csvWriter = csv.NewWriter(l.outputFile)
		header := []string{"timestamp", "run_id", "host", "method", "url", "status_code", "status", "content_type", "request_size", "response_size", "duration_ms"}
		if err := l.csvWriter.Write(header); err != nil {
			return err
		}
		l.csvWriter.Flush()
	case config.FormatHAR:
		l.har = NewHAR(l.runID, l.version, time.Now())
	}
	return nil
}

// Record logs one session. It implements the capture sink interface.
func (l *TrafficLogger) Record(s *session.Session) error {
	if l.outputFile == nil || !l.shouldLogTraffic(s) {
		return nil
	}

	record := NewTrafficRecord(s, l.config.KeepListItem, l.config.MaxBodySize)
	record.RunID = l.runID

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logTrafficToFile(record)
}

// shouldLogTraffic applies the content type exclusions
func (l *TrafficLogger) shouldLogTraffic(s *session.Session) bool {
	contentType := strings.ToLower(s.Response.Headers.Get("content-type"))
	for _, excludeType := range l.config.ExcludeContentTypes {
		if excludeType != "" && strings.Contains(contentType, strings.ToLower(excludeType)) {
			l.logger.Debug("Not recording %s: content type %s is excluded", s, contentType)
			return false
		}
	}
	return true
}

// logTrafficToFile logs traffic to file in the specified format
func (l *TrafficLogger) logTrafficToFile(record *TrafficRecord) error {
	switch l.config.OutputFormat {
	case config.FormatJSON:
		return l.logTrafficAsJSON(record)
	case config.FormatCSV:
		return l.logTrafficAsCSV(record)
	case config.FormatHAR:
		l.har.Add(record)
		return nil
	default:
		return l.logTrafficAsText(record)
	}
}

// logTrafficAsJSON writes one JSON object per line
func (l *TrafficLogger) logTrafficAsJSON(record *TrafficRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = l.outputFile.Write(append(data, '\n'))
	return err
}

// logTrafficAsCSV logs traffic as CSV format
func (l *TrafficLogger) logTrafficAsCSV(record *TrafficRecord) error {
	row := []string{
		record.Timestamp.Format(time.RFC3339),
		record.RunID,
		record.Host,
		record.Request.Method,
		record.Request.URL,
		strconv.Itoa(record.Response.StatusCode),
		record.Response.Status,
		record.Response.ContentType,
		strconv.Itoa(record.Request.BodySize),
		strconv.Itoa(record.Response.BodySize),
		strconv.FormatFloat(record.DurationMS, 'f', 3, 64),
	}

	if err := l.csvWriter.Write(row); err != nil {
		return err
	}
	l.csvWriter.Flush()
	return l.csvWriter.Error()
}

// logTrafficAsText logs traffic as human-readable text
func (l *TrafficLogger) logTrafficAsText(record *TrafficRecord) error {
	text := fmt.Sprintf("[%s] %s %s %s -> %s %s (%s, %d bytes, %.3fms)\n",
		record.Timestamp.Format(time.DateTime),
		record.Host,
		record.Request.Method,
		record.Request.URL,
		record.Response.Proto,
		record.Response.Status,
		record.Response.ContentType,
		record.Response.BodySize,
		record.DurationMS,
	)

	_, err := l.outputFile.WriteString(text)
	return err
}

// Close flushes buffered records and closes the output file
func (l *TrafficLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.outputFile == nil {
		return nil
	}
	if l.csvWriter != nil {
		l.csvWriter.Flush()
	}
	if l.har != nil {
		data, err := l.har.ToJSON()
		if err != nil {
			l.outputFile.Close()
			return err
		}
		if _, err := l.outputFile.Write(data); err != nil {
			l.outputFile.Close()
			return err
		}
		l.logger.Info("Wrote %d HAR entries to %s", len(l.har.Log.Entries), l.config.OutputFile)
	}
	err := l.outputFile.Close()
	l.outputFile = nil
	return err
}
