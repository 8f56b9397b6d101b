// Package deskapi calls the service desk REST API on behalf of one staff
// session. It implements the snapshot and action ports of the client library.
package deskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const (
	notificationsPath = "/api/admin/notifications"
	ticketsPath       = "/api/support/tickets"
)

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	Get() (string, error)
}

// Me describes the authenticated session as the server sees it.
type Me struct {
	Actor       domain.Actor `json:"actor"`
	Permissions []string     `json:"permissions"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
}

type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

type listBody[T any] struct {
	Data []T `json:"data"`
}

type replyBody struct {
	Ticket  *domain.SupportTicket `json:"ticket"`
	Message *domain.TicketMessage `json:"message"`
}

// Client is a thin JSON client for the staff endpoints.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

var (
	_ ports.SnapshotSource      = (*Client)(nil)
	_ ports.NotificationActions = (*Notifications)(nil)
	_ ports.TicketActions       = (*Tickets)(nil)
)

// NewClient targets the server at baseURL. A nil httpClient gets a 30 second
// timeout.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: server url must be http or https", apperrors.ErrInvalidInput)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}, nil
}

// Me fetches the server's view of the current token.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Snapshot fetches everything the viewer may currently see.
func (c *Client) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/sync", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Notifications returns the notification actions of this client.
func (c *Client) Notifications() *Notifications { return &Notifications{c: c} }

// Tickets returns the ticket actions of this client.
func (c *Client) Tickets() *Tickets { return &Tickets{c: c} }

// --- notifications ---

// Notifications calls the admin notification endpoints.
type Notifications struct {
	c *Client
}

func (n *Notifications) MarkRead(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return n.send(ctx, id, "read", nil)
}

func (n *Notifications) MarkAllRead(ctx context.Context) ([]*domain.Notification, error) {
	var body listBody[*domain.Notification]
	if err := n.c.do(ctx, http.MethodPatch, notificationsPath+"/read-all", nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (n *Notifications) Resolve(ctx context.Context, id uuid.UUID, note string) (*domain.Notification, error) {
	return n.send(ctx, id, "resolve", noteBody(note))
}

func (n *Notifications) Archive(ctx context.Context, id uuid.UUID, note string) (*domain.Notification, error) {
	return n.send(ctx, id, "archive", noteBody(note))
}

// CleanupArchived deletes archived notifications older than the given number
// of days. A failed run comes back as *apperrors.CleanupFailedError.
func (n *Notifications) CleanupArchived(ctx context.Context, olderThanDays int) (*domain.CleanupReport, error) {
	q := url.Values{"days": {strconv.Itoa(olderThanDays)}}
	var report domain.CleanupReport
	if err := n.c.do(ctx, http.MethodDelete, notificationsPath+"/cleanup?"+q.Encode(), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CleanupLogs lists the server's recorded cleanup runs, newest first.
func (n *Notifications) CleanupLogs(ctx context.Context, limit int) ([]*domain.CleanupReport, error) {
	path := notificationsPath + "/cleanup/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var body listBody[*domain.CleanupReport]
	if err := n.c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (n *Notifications) send(ctx context.Context, id uuid.UUID, action string, body any) (*domain.Notification, error) {
	var out domain.Notification
	path := fmt.Sprintf("%s/%s/%s", notificationsPath, id, action)
	if err := n.c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func noteBody(note string) any {
	if note == "" {
		return nil
	}
	return map[string]string{"note": note}
}

// --- tickets ---

// Tickets calls the support ticket lock and reply endpoints.
type Tickets struct {
	c *Client
}

func (t *Tickets) Assign(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error) {
	return t.send(ctx, ticketID, "assign")
}

func (t *Tickets) Unassign(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error) {
	return t.send(ctx, ticketID, "unassign")
}

func (t *Tickets) Reply(ctx context.Context, ticketID uuid.UUID, content string) (*domain.SupportTicket, *domain.TicketMessage, error) {
	var body replyBody
	path := fmt.Sprintf("%s/%s/reply", ticketsPath, ticketID)
	if err := t.c.do(ctx, http.MethodPost, path, map[string]string{"message": content}, &body); err != nil {
		return nil, nil, err
	}
	if body.Ticket == nil || body.Message == nil {
		return nil, nil, fmt.Errorf("%w: reply response missing ticket or message", apperrors.ErrInternal)
	}
	return body.Ticket, body.Message, nil
}

func (t *Tickets) Resolve(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error) {
	return t.send(ctx, ticketID, "resolve")
}

func (t *Tickets) Close(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error) {
	return t.send(ctx, ticketID, "close")
}

func (t *Tickets) send(ctx context.Context, id uuid.UUID, action string) (*domain.SupportTicket, error) {
	var out domain.SupportTicket
	path := fmt.Sprintf("%s/%s/%s", ticketsPath, id, action)
	if err := t.c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one request and decodes a 2xx body into result. Error bodies are
// mapped back onto the domain error they were rendered from.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	token, err := c.tokens.Get()
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}
	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return fmt.Errorf("%w: unexpected status %d", statusSentinel(status), status)
	}

	switch body.Code {
	case apperrors.CodeAlreadyLocked:
		conflict := &apperrors.LockConflictError{OwnerName: detail(body.Details, "assignedToName")}
		if id, err := uuid.Parse(detail(body.Details, "ticketId")); err == nil {
			conflict.TicketID = id
		}
		if owner, err := uuid.Parse(detail(body.Details, "assignedTo")); err == nil {
			conflict.Owner = &owner
		}
		return conflict
	case apperrors.CodeCleanupFailed:
		failed := &apperrors.CleanupFailedError{
			RunID:   detail(body.Details, "id"),
			Details: detail(body.Details, "details"),
		}
		if ts, err := time.Parse(time.RFC3339Nano, detail(body.Details, "timestamp")); err == nil {
			failed.Timestamp = ts
		}
		return failed
	}

	sentinel := apperrors.SentinelForCode(body.Code)
	if body.Error == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, body.Error)
}

func statusSentinel(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case http.StatusForbidden:
		return apperrors.ErrForbidden
	case http.StatusNotFound:
		return apperrors.ErrNotFound
	case http.StatusConflict:
		return apperrors.ErrConcurrentUpdate
	case http.StatusTooManyRequests:
		return apperrors.ErrRateLimited
	}
	return apperrors.ErrInternal
}

func detail(details map[string]any, key string) string {
	s, _ := details[key].(string)
	return s
}

// IsUnauthorized reports whether err means the token was rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, apperrors.ErrUnauthorized)
}
