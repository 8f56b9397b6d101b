// Package sse is the client side of the server-sent event push channel.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// DefaultPath is the stream endpoint on the server.
const DefaultPath = "/api/stream"

const maxFrameSize = 1024 * 1024

// TokenSource yields the bearer token for each connection attempt.
type TokenSource interface {
	Get() (string, error)
}

// Transport opens the stream as one actor.
type Transport struct {
	endpoint string
	tokens   TokenSource
	client   *http.Client
}

var _ ports.StreamTransport = (*Transport)(nil)

// NewTransport targets baseURL + DefaultPath. client must not have a
// Timeout set, or every stream is cut off after it; nil uses a fresh client.
func NewTransport(baseURL string, actor domain.Actor, tokens TokenSource, client *http.Client) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + DefaultPath)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: stream url must be http or https", apperrors.ErrInvalidInput)
	}
	q := u.Query()
	q.Set("userId", actor.ID.String())
	q.Set("role", string(actor.Role))
	u.RawQuery = q.Encode()

	if client == nil {
		client = &http.Client{}
	}
	return &Transport{endpoint: u.String(), tokens: tokens, client: client}, nil
}

// Open sends the GET and returns once the server accepted the stream.
func (t *Transport) Open(ctx context.Context) (ports.FrameStream, error) {
	token, err := t.tokens.Get()
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("stream rejected: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
		case http.StatusForbidden:
			return nil, fmt.Errorf("%w: %v", apperrors.ErrForbidden, err)
		}
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("stream rejected: unexpected content type %q", ct)
	}

	return newStream(resp.Body), nil
}

// Stream decodes text/event-stream frames from a response body.
type Stream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	closeOnce sync.Once
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &Stream{body: body, scanner: scanner}
}

// Next blocks until a complete frame arrives. It returns io.EOF when the
// server ends the stream.
func (s *Stream) Next() (domain.Frame, error) {
	var (
		f       domain.Frame
		data    []string
		hasData bool
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if !hasData && f.Name == "" {
				continue
			}
			f.Data = []byte(strings.Join(data, "\n"))
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			f.ID = value
		case "event":
			f.Name = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		return domain.Frame{}, err
	}
	return domain.Frame{}, io.EOF
}

// Close releases the connection and unblocks a pending Next.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
