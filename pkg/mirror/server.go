package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/logger"
	"github.com/httpseal/apiseal/pkg/session"
)

const queueSize = 100

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("mirror server is closed")

// Headers added to mirrored exchanges.
const (
	HeaderMirrorID     = "X-Apiseal-Mirror-ID"
	HeaderOriginalHost = "X-Apiseal-Original-Host"
	HeaderTimestamp    = "X-Apiseal-Timestamp"
	HeaderMirror       = "X-Apiseal-Mirror"
)

// exchange is one session waiting to be replayed.
type exchange struct {
	ID              uint64
	Timestamp       time.Time
	OriginalHost    string
	Method          string
	URL             string
	RequestHeaders  []httpmsg.Field
	RequestBody     string
	ResponseHeaders []httpmsg.Field
	ResponseBody    string
	StatusCode      int
}

// Server replays captured sessions as real HTTP exchanges on the loopback
// interface so that packet tools can inspect them.
type Server struct {
	port     int
	keep     int
	listener net.Listener
	server   *http.Server
	client   *http.Client
	logger   logger.Logger
	wg       sync.WaitGroup
	lastID   uint64
	queue    chan *exchange
	drained  chan struct{}

	// mu guards pending and closed; queue is only sent to or closed with
	// mu held.
	mu      sync.Mutex
	pending map[uint64]*exchange
	closed  bool
}

// NewServer creates a new HTTP mirror server. Port 0 picks a free port.
func NewServer(port, keep int, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		port:    port,
		keep:    keep,
		logger:  log,
		queue:   make(chan *exchange, queueSize),
		drained: make(chan struct{}),
		pending: make(map[uint64]*exchange),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{DisableKeepAlives: true, DisableCompression: true},
		},
	}
}

// Router returns the mirror's routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.PathPrefix("/").HeadersRegexp(HeaderMirrorID, "^[0-9]+$").HandlerFunc(s.handleMirrored)
	r.PathPrefix("/").HeadersRegexp(HeaderMirrorID, ".").HandlerFunc(s.handleBadID)
	r.PathPrefix("/").HandlerFunc(s.handleHealth)
	return r
}

// Start listens on loopback and begins replaying queued sessions.
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("mirror: listen on port %d: %w", s.port, err)
	}
	s.port = s.listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	s.logger.Info("Mirroring sessions to 127.0.0.1:%d (capture with: tcp port %d on lo)", s.port, s.port)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Mirror server stopped: %v", err)
		}
	}()
	go s.replayQueued()
	return nil
}

// Close drains pending exchanges and stops the server. It implements io.Closer
// so the capture pipeline can close it with its other sinks.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	<-s.drained

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Record queues a session for mirroring. Bodies are sent decoded, so
// transfer and content codings are dropped from the mirrored headers.
func (s *Server) Record(sess *session.Session) error {
	req, resp := sess.Request, sess.Response
	record := &exchange{
		ID:              atomic.AddUint64(&s.lastID, 1),
		Timestamp:       req.Timestamp,
		OriginalHost:    req.Host,
		Method:          req.Method,
		URL:             req.URL,
		RequestHeaders:  httpmsg.ParseFields(req.RawHeaders),
		RequestBody:     req.Body(s.keep).Decoded,
		ResponseHeaders: httpmsg.ParseFields(resp.RawHeaders),
		ResponseBody:    resp.Body(s.keep).Decoded,
		StatusCode:      resp.StatusCode,
	}
	if record.StatusCode < 100 || record.StatusCode > 999 {
		record.StatusCode = http.StatusOK
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- record:
		s.pending[record.ID] = record
	default:
		s.logger.Warn("Mirror queue full, dropping %s %s", record.Method, record.URL)
	}
	return nil
}

func (s *Server) forget(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Server) handleBadID(w http.ResponseWriter, r *http.Request) {
	s.logger.Error("Invalid Mirror-ID: %s", r.Header.Get(HeaderMirrorID))
	http.Error(w, "Invalid Mirror-ID", http.StatusBadRequest)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(HeaderMirror, "true")
	io.WriteString(w, "apiseal mirror server - ready for Wireshark")
}

// handleMirrored answers a replayed request with its captured response.
func (s *Server) handleMirrored(w http.ResponseWriter, r *http.Request) {
	mirrorID, err := strconv.ParseUint(r.Header.Get(HeaderMirrorID), 10, 64)
	if err != nil {
		s.handleBadID(w, r)
		return
	}
	io.Copy(io.Discard, r.Body)

	s.mu.Lock()
	record, ok := s.pending[mirrorID]
	delete(s.pending, mirrorID)
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("Mirror: no pending session %d", mirrorID)
		http.Error(w, "Response not found", http.StatusNotFound)
		return
	}

	h := w.Header()
	for _, f := range record.ResponseHeaders {
		if skipHeader(f.Name) {
			continue
		}
		h.Add(f.Name, f.Value)
	}
	h.Set(HeaderOriginalHost, record.OriginalHost)
	h.Set(HeaderMirrorID, strconv.FormatUint(record.ID, 10))
	h.Set(HeaderTimestamp, record.Timestamp.Format(time.RFC3339))
	h.Set("Content-Length", strconv.Itoa(len(record.ResponseBody)))
	w.WriteHeader(record.StatusCode)
	io.WriteString(w, record.ResponseBody)
}

// replayQueued sends queued sessions one at a time until the queue closes.
func (s *Server) replayQueued() {
	defer close(s.drained)
	for record := range s.queue {
		if err := s.replay(record); err != nil {
			s.forget(record.ID)
			s.logger.Error("Mirror: replaying %s %s: %v", record.Method, record.URL, err)
		}
	}
}

// replay sends record as a plain HTTP request to the mirror itself.
func (s *Server) replay(record *exchange) error {
	target := fmt.Sprintf("http://127.0.0.1:%d%s", s.port, record.URL)
	req, err := http.NewRequest(record.Method, target, strings.NewReader(record.RequestBody))
	if err != nil {
		return err
	}

	for _, f := range record.RequestHeaders {
		if skipHeader(f.Name) || strings.EqualFold(f.Name, "Host") {
			continue
		}
		req.Header.Add(f.Name, f.Value)
	}
	req.Host = record.OriginalHost
	req.Header.Set(HeaderOriginalHost, record.OriginalHost)
	req.Header.Set(HeaderMirrorID, strconv.FormatUint(record.ID, 10))
	req.Header.Set(HeaderTimestamp, record.Timestamp.Format(time.RFC3339))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// Port is the listening port, resolved once Start returns.
func (s *Server) Port() int {
	return s.port
}

func skipHeader(name string) bool {
	switch strings.ToLower(name) {
	case "connection", "content-length", "transfer-encoding", "content-encoding", "keep-alive":
		return true
	}
	return false
}
