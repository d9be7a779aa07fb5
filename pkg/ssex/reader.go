// Package ssex reads server-sent event streams one data line at a time.
package ssex

import (
	"bytes"
	"io"
)

const (
	// DataPrefix marks a line carrying an event payload.
	DataPrefix = "data:"
	// DoneSentinel is the payload that terminates OpenAI-compatible streams.
	DoneSentinel = "[DONE]"

	defaultReadSize = 4096
)

// Reader is a pull-based SSE line reader.
//
// It keeps a growing buffer and only reads from the underlying stream when no
// complete line is buffered. Lines that do not start with DataPrefix are
// skipped. A DoneSentinel payload ends the stream and stays available through
// Raw. When the stream ends with an unterminated data line or bare JSON object
// still buffered, that fragment is yielded as one last event.
type Reader struct {
	r       io.Reader
	buf     []byte
	scratch []byte

	data []byte
	raw  []byte

	eof  bool
	done bool
	err  error
}

// NewReader creates a Reader on top of r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, scratch: make([]byte, defaultReadSize)}
}

// Next advances to the next data event. It returns false at the end of the
// stream, after the done sentinel or when reading failed.
func (r *Reader) Next() bool {
	if r.done || r.err != nil {
		return false
	}

	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := bytes.TrimRight(r.buf[:i], "\r")
			r.buf = r.buf[i+1:]
			if r.accept(line, false) {
				return true
			}
			if r.done {
				return false
			}
			continue
		}

		if r.eof {
			rest := bytes.TrimSpace(r.buf)
			r.buf = nil
			if len(rest) == 0 {
				return false
			}
			return r.accept(rest, true)
		}

		n, err := r.r.Read(r.scratch)
		if n > 0 {
			r.buf = append(r.buf, r.scratch[:n]...)
		}
		if err == io.EOF {
			r.eof = true
		} else if err != nil {
			r.err = err
			return false
		}
	}
}

func (r *Reader) accept(line []byte, trailing bool) bool {
	var payload []byte
	switch {
	case bytes.HasPrefix(line, []byte(DataPrefix)):
		payload = bytes.TrimSpace(line[len(DataPrefix):])
	case trailing && bytes.HasPrefix(line, []byte("{")):
		// a bare JSON fragment cut off before its newline is still worth a parse attempt
		payload = line
	default:
		return false
	}

	if len(payload) == 0 {
		return false
	}
	if string(payload) == DoneSentinel {
		r.done = true
		r.data = nil
		r.raw = bytes.Clone(line)
		return false
	}

	r.raw = bytes.Clone(line)
	r.data = bytes.Clone(payload)
	return true
}

// Data returns the payload of the current event with the prefix removed.
func (r *Reader) Data() []byte {
	return r.data
}

// Raw returns the current event line exactly as received. After the done
// sentinel it returns the sentinel line.
func (r *Reader) Raw() []byte {
	return r.raw
}

// Done reports whether the done sentinel was observed.
func (r *Reader) Done() bool {
	return r.done
}

// Err returns the first non-EOF read error.
func (r *Reader) Err() error {
	return r.err
}
