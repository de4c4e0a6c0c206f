package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Reader reads frames from a newline-delimited capture stream.
type Reader struct {
	r    *bufio.Reader
	line int
}

// NewReader creates a Reader. Lines may be of any length.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Line returns the number of the last line read.
func (r *Reader) Line() int {
	return r.line
}

// Next returns the next frame. A *DecodeError means the current record was
// skipped and reading may continue; io.EOF marks the end of the stream; any
// other error comes from the underlying reader.
func (r *Reader) Next() (*Frame, error) {
	for {
		line, err := r.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return nil, err
		}
		r.line++

		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		f, decodeErr := Decode(line)
		if decodeErr != nil {
			return nil, decodeErr
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return f, nil
	}
}
