package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// MaxLineSize bounds a single protocol line. Longer lines are dropped.
const MaxLineSize = 16 * 1024 * 1024

var marker = []byte(domain.EventMarker)

// Encoder writes marker-prefixed event lines.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates a new protocol encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one event line and flushes it.
func (e *Encoder) Encode(ev domain.Event) error {
	payload, err := Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(marker); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if _, err := e.w.Write(payload); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// Stats counts what a decoder has seen so far.
type Stats struct {
	Lines   int
	Events  int
	Noise   int
	Dropped int
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithNoiseHandler receives every non-protocol line.
func WithNoiseHandler(fn func(line string)) DecoderOption {
	return func(d *Decoder) { d.onNoise = fn }
}

// WithDropHandler receives every marker line that failed to decode.
func WithDropHandler(fn func(line string, err error)) DecoderOption {
	return func(d *Decoder) { d.onDrop = fn }
}

// Decoder reads events from a probe's output stream.
type Decoder struct {
	r       *bufio.Reader
	stats   Stats
	onNoise func(string)
	onDrop  func(string, error)
	done    bool
}

// NewDecoder creates a new protocol decoder.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stats returns the counters accumulated so far.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Next returns the next event in arrival order, or io.EOF at end of stream.
// Other read errors are returned as is.
func (d *Decoder) Next() (domain.Event, error) {
	for {
		if d.done {
			return nil, io.EOF
		}
		line, err := d.readLine()
		if errors.Is(err, io.EOF) {
			d.done = true
			if line == nil {
				return nil, io.EOF
			}
		} else if err != nil {
			return nil, err
		}

		if ev, ok := d.handle(line); ok {
			return ev, nil
		}
	}
}

func (d *Decoder) handle(line []byte) (domain.Event, bool) {
	d.stats.Lines++
	line = bytes.TrimSuffix(line, []byte{'\r'})

	if !bytes.HasPrefix(line, marker) {
		d.stats.Noise++
		if d.onNoise != nil {
			d.onNoise(string(line))
		}
		return nil, false
	}

	ev, err := Unmarshal(line[len(marker):])
	if err != nil {
		d.stats.Dropped++
		if d.onDrop != nil {
			d.onDrop(string(line), err)
		}
		return nil, false
	}
	d.stats.Events++
	return ev, true
}

var errLineTooLong = errors.New("protocol line too long")

// readLine returns one line without its newline. A final unterminated line is
// returned together with io.EOF. Oversized lines are consumed and dropped.
func (d *Decoder) readLine() ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > MaxLineSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLong {
				d.drop(errLineTooLong)
				buf, tooLong = nil, false
				continue
			}
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong {
				d.drop(errLineTooLong)
				return nil, io.EOF
			}
			if len(buf) == 0 {
				return nil, io.EOF
			}
			return buf, io.EOF
		default:
			return nil, err
		}
	}
}

func (d *Decoder) drop(err error) {
	d.stats.Lines++
	d.stats.Dropped++
	if d.onDrop != nil {
		d.onDrop("", err)
	}
}
