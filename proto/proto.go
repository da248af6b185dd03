// Package proto defines the line-delimited JSON protocol spoken between
// the host bridge and the pipeline worker: one object per line, requests
// flowing in, responses and unsolicited events flowing out.
package proto

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"time"
)

const (
	// Event names emitted by the worker.
	EventStatusChanged   = "status_changed"
	EventTranscriptReady = "transcript_ready"
	EventMetrics         = "metrics"
	EventRuntimeError    = "runtime_error"
)

// Request is a caller-issued command. IDs are assigned by the caller and
// must be unique for the lifetime of the connection.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Message is any outbound worker line. Lines are tagged with a type
// discriminator; readers also fall back to field presence so an untagged
// line still routes correctly.
type Message struct {
	Type   string          `json:"type,omitempty"`
	ID     int64           `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   map[string]any  `json:"data,omitempty"`
	TS     float64         `json:"ts,omitempty"`
}

func (m *Message) IsEvent() bool {
	return m.Type == "event" || (m.Type == "" && m.Event != "")
}

func (m *Message) IsResponse() bool {
	return m.Type == "response" || (m.Type == "" && m.Event == "")
}

type response struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result"`
	Error  *Error `json:"error"`
}

type event struct {
	Type  string         `json:"type"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
	TS    float64        `json:"ts"`
}

// Writer serializes outbound lines. Safe for concurrent use; the worker
// writes responses and events from multiple goroutines onto one pipe.
type Writer struct {
	mu  sync.Mutex
	out *bufio.Writer
	now func() time.Time
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w), now: time.Now}
}

func (w *Writer) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(data); err != nil {
		return err
	}
	if err := w.out.WriteByte('\n'); err != nil {
		return err
	}
	return w.out.Flush()
}

// Respond writes the single success response for a request id.
func (w *Writer) Respond(id int64, result any) error {
	return w.writeLine(response{Type: "response", ID: id, OK: true, Result: result})
}

// Request writes a command line. Used on the host side of the pipe.
func (w *Writer) Request(id int64, method string, params any) error {
	req := Request{ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = data
	}
	return w.writeLine(req)
}

// Fail writes the single error response for a request id.
func (w *Writer) Fail(id int64, code, message string) error {
	return w.writeLine(response{Type: "response", ID: id, OK: false, Error: &Error{Code: code, Message: message}})
}

// Event writes an unsolicited event. Events share the writer's lock with
// responses, so their relative order on the wire is the call order.
func (w *Writer) Event(name string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	ts := float64(w.now().UnixNano()) / float64(time.Second)
	return w.writeLine(event{Type: "event", Event: name, Data: data, TS: ts})
}

// Reader scans inbound lines. Not safe for concurrent use.
type Reader struct {
	sc *bufio.Scanner
}

const maxLine = 1 << 20

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	return &Reader{sc: sc}
}

// ReadRequest returns the next request line, skipping blank lines.
// io.EOF signals a closed peer.
func (r *Reader) ReadRequest() (Request, error) {
	var req Request
	raw, err := r.next()
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	return req, nil
}

// ReadMessage returns the next response or event line.
func (r *Reader) ReadMessage() (Message, error) {
	var msg Message
	raw, err := r.next()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}

func (r *Reader) next() ([]byte, error) {
	for r.sc.Scan() {
		line := r.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
