package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// EncodeFrame writes f in text/event-stream format. Multi-line data is split
// across data: lines.
func EncodeFrame(w io.Writer, f domain.Frame) error {
	var buf bytes.Buffer
	if f.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", f.ID)
	}
	if f.Name != "" {
		fmt.Fprintf(&buf, "event: %s\n", f.Name)
	}
	for _, line := range bytes.Split(f.Data, []byte("\n")) {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// SSEWriter writes frames to an HTTP response and flushes after each one.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the event-stream headers and sends them.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteFrame implements FrameSink.
func (s *SSEWriter) WriteFrame(f domain.Frame) error {
	if err := EncodeFrame(s.w, f); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

type pingBody struct {
	At time.Time `json:"at"`
}

type resyncBody struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// ConnectedFrame greets a freshly opened stream.
func ConnectedFrame(viewer domain.Actor, at time.Time) domain.Frame {
	data, _ := json.Marshal(domain.Greeting{ViewerID: viewer.ID, Role: viewer.Role, At: at})
	return domain.Frame{Name: domain.FrameConnected, Data: data}
}

// PingFrame is the keepalive sent every heartbeat interval.
func PingFrame(at time.Time) domain.Frame {
	data, _ := json.Marshal(pingBody{At: at})
	return domain.Frame{Name: domain.FramePing, Data: data}
}

// ResyncFrame tells the client its view may be missing events.
func ResyncFrame(reason string, at time.Time) domain.Frame {
	data, _ := json.Marshal(resyncBody{Reason: reason, At: at})
	return domain.Frame{Name: domain.FrameResyncRequired, Data: data}
}
