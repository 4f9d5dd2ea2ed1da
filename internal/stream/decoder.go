package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/user/pdfchat/internal/types"
	"github.com/user/pdfchat/pkg/backend"
)

const (
	maxFrameBytes = 1 << 20
	doneSentinel  = "[DONE]"
)

// ErrMalformedFrame is wrapped by failures caused by undecodable frames.
var ErrMalformedFrame = errors.New("malformed frame")

// BackendError is reported by the backend inside the stream itself.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// Decoder reads server-sent events from an ask response body. Each call to
// Next performs only the reads needed for one event.
type Decoder struct {
	scanner *bufio.Scanner
	pending []Event
	done    bool
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxFrameBytes)
	return &Decoder{scanner: scanner}
}

// Next returns the next event. After a terminal event has been returned, ok
// is false on every further call.
func (d *Decoder) Next() (ev Event, ok bool) {
	for {
		if len(d.pending) > 0 {
			ev = d.pending[0]
			d.pending = d.pending[1:]
			return ev, true
		}
		if d.done {
			return Event{}, false
		}

		data, err := d.readFrame()
		if err != nil {
			d.done = true
			if errors.Is(err, io.EOF) {
				// The plain chat endpoint signals completion by closing the stream.
				return completion(nil), true
			}
			return failure(fmt.Errorf("stream reading error: %w", err)), true
		}
		d.pending = d.decodeFrame(data)
	}
}

// readFrame collects the data lines of one event, stopping at the blank line
// that dispatches it. io.EOF is returned only when no data is pending.
func (d *Decoder) readFrame() ([]byte, error) {
	var data []byte
	hasData := false
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			if hasData {
				return data, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if hasData {
			data = append(data, '\n')
		}
		data = append(data, value...)
		hasData = true
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	if hasData {
		return data, nil
	}
	return nil, io.EOF
}

// decodeFrame maps one frame onto the events it produces. A frame may carry
// both a final fragment and the completion marker.
func (d *Decoder) decodeFrame(data []byte) []Event {
	if string(bytes.TrimSpace(data)) == doneSentinel {
		d.done = true
		return []Event{completion(nil)}
	}

	var frame backend.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		d.done = true
		return []Event{failure(fmt.Errorf("%w: %v", ErrMalformedFrame, err))}
	}

	if frame.Error != "" {
		d.done = true
		return []Event{failure(&BackendError{Message: frame.Error})}
	}

	var events []Event
	if frame.Content != "" {
		events = append(events, fragment(frame.Content))
	}
	if frame.Done {
		d.done = true
		events = append(events, completion(sourceRefs(frame.Sources)))
	}
	return events
}

func sourceRefs(sources []backend.Source) []types.SourceRef {
	if len(sources) == 0 {
		return nil
	}
	refs := make([]types.SourceRef, len(sources))
	for i, s := range sources {
		refs[i] = types.SourceRef{
			Document: s.Filename,
			Excerpt:  s.Text,
			Score:    s.Score,
		}
	}
	return refs
}
