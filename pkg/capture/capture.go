package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/httpseal/apiseal/pkg/frame"
	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/logger"
	"github.com/httpseal/apiseal/pkg/session"
)

// Sink receives every matched session.
type Sink interface {
	Record(s *session.Session) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s *session.Session) error

// Record calls f(s).
func (f SinkFunc) Record(s *session.Session) error {
	return f(s)
}

// Stats counts what happened to the frames of one run.
type Stats struct {
	Frames       int
	Admitted     int
	Rejected     int
	Evicted      int
	Missed       int
	Matched      int
	DecodeErrors int
	SinkErrors   int
}

func (s Stats) String() string {
	return fmt.Sprintf("frames=%d admitted=%d rejected=%d evicted=%d missed=%d matched=%d decode_errors=%d sink_errors=%d",
		s.Frames, s.Admitted, s.Rejected, s.Evicted, s.Missed, s.Matched, s.DecodeErrors, s.SinkErrors)
}

// Capturer turns a capture stream into sessions.
type Capturer struct {
	cache  *Cache
	sinks  []Sink
	logger logger.Logger
	stats  Stats
}

// New creates a Capturer. Sinks implementing io.Closer are closed when Run
// returns.
func New(cache *Cache, log logger.Logger, sinks ...Sink) *Capturer {
	if log == nil {
		log = logger.Nop()
	}
	return &Capturer{cache: cache, sinks: sinks, logger: log}
}

// Stats returns the counters so far.
func (c *Capturer) Stats() Stats {
	return c.stats
}

type next struct {
	frame *frame.Frame
	err   error
	line  int
}

// Run consumes r until end of stream, a read error or cancellation of ctx.
// Frames are handled one at a time in stream order. Reaching the end of the
// stream is not an error.
func (c *Capturer) Run(ctx context.Context, r io.Reader) (err error) {
	defer func() {
		if cerr := c.closeSinks(); err == nil {
			err = cerr
		}
	}()

	reader := frame.NewReader(r)
	frames := make(chan next)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(frames)
		for {
			f, err := reader.Next()
			select {
			case frames <- next{f, err, reader.Line()}:
			case <-done:
				return
			}
			var de *frame.DecodeError
			if err != nil && !errors.As(err, &de) {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-frames:
			if !ok {
				return nil
			}
			if n.err != nil {
				var de *frame.DecodeError
				if errors.As(n.err, &de) {
					c.stats.DecodeErrors++
					c.logger.Warn("Skipping record at line %d: %v", n.line, n.err)
					continue
				}
				if errors.Is(n.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("failed to read capture stream: %w", n.err)
			}
			c.Handle(n.frame)
		}
	}
}

// Handle processes a single frame.
func (c *Capturer) Handle(f *frame.Frame) {
	c.stats.Frames++
	switch f.Kind {
	case frame.KindRequest:
		c.handleRequest(f)
	case frame.KindResponse:
		c.handleResponse(f)
	}
}

func (c *Capturer) handleRequest(f *frame.Frame) {
	req, err := httpmsg.NewRequest(f.Payload, f.Time())
	if err != nil {
		c.stats.DecodeErrors++
		c.logger.Warn("Skipping request %s: %v", f.ID, err)
		return
	}

	adm := c.cache.Offer(f.ID, req)
	if adm.Rejected != RejectNone {
		c.stats.Rejected++
		c.logger.Debug("%s: %s", adm.Rejected, req)
		return
	}
	c.stats.Admitted++
	if adm.Evicted != nil {
		c.stats.Evicted++
		c.logger.Warn("Discarding request %s, cache is full: %s", adm.EvictedID, adm.Evicted)
	}
}

func (c *Capturer) handleResponse(f *frame.Frame) {
	resp, err := httpmsg.NewResponse(f.Payload, f.Duration())
	if err != nil {
		c.stats.DecodeErrors++
		c.logger.Warn("Skipping response %s: %v", f.ID, err)
		return
	}

	req, ok := c.cache.Match(f.ID)
	if !ok {
		c.stats.Missed++
		c.logger.Debug("No pending request for response %s", f.ID)
		return
	}

	s := session.Pair(req, resp)
	c.stats.Matched++
	c.logger.Info("%s", s)

	for _, sink := range c.sinks {
		if err := sink.Record(s); err != nil {
			c.stats.SinkErrors++
			c.logger.Error("Failed to record %s: %v", s, err)
		}
	}
}

func (c *Capturer) closeSinks() error {
	var errs []error
	for _, sink := range c.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
