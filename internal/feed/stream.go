package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Backoff constants for the stream reconnect loop.
const (
	initialStreamBackoff  = 5 * time.Second
	streamBackoffCap      = 5 * time.Minute
	streamBackoffMultiply = 2
	readLimitBytes        = 1 << 20 // change-feed rows are small; 1 MiB is generous
)

// EventAction is the row-level change kind reported by the feed.
type EventAction string

// Change-feed actions.
const (
	ActionInsert EventAction = "INSERT"
	ActionUpdate EventAction = "UPDATE"
	ActionDelete EventAction = "DELETE"
)

// Event is one row-level change from the feed. New and Old are the raw row
// images; consumers decode only the columns they care about. Events carry no
// ordering guarantee beyond per-table emission order and must be treated as
// refresh signals, never as deltas to apply directly.
type Event struct {
	Table  string          `json:"table"`
	Action EventAction     `json:"eventType"`
	New    json.RawMessage `json:"new"`
	Old    json.RawMessage `json:"old"`
}

// TableFilter scopes a subscription to one table, optionally restricted by
// a server-side column equality check.
type TableFilter struct {
	Table  string `json:"table"`
	Column string `json:"column,omitempty"`
	Equals string `json:"equals,omitempty"`
}

// Stream subscribes to the incident store's change feed over a websocket.
// It reconnects with exponential backoff on transient failures and stops
// cleanly when the context is canceled.
type Stream struct {
	url       string
	token     TokenSource
	filters   []TableFilter
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error

	// dialFunc is swappable for tests.
	dialFunc func(ctx context.Context, url string, opts *websocket.DialOptions) (*websocket.Conn, *http.Response, error)
}

// NewStream creates a change-feed subscription for the given tables.
func NewStream(url string, token TokenSource, filters []TableFilter, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}

	return &Stream{
		url:       url,
		token:     token,
		filters:   filters,
		logger:    logger,
		sleepFunc: timeSleep,
		dialFunc:  websocket.Dial,
	}
}

// Watch connects to the feed and sends events to the provided channel until
// the context is canceled, reconnecting on failure. It blocks and returns
// nil on cancellation. Sends are blocking: a dropped change event could hide
// a reassignment until the next manual refresh, so backpressure correctly
// slows the reader instead.
func (s *Stream) Watch(ctx context.Context, events chan<- Event) error {
	backoff := initialStreamBackoff

	for {
		err := s.runOnce(ctx, events)
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Warn("change feed disconnected, backing off",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		if sleepErr := s.sleepFunc(ctx, backoff); sleepErr != nil {
			return nil
		}

		backoff *= streamBackoffMultiply
		if backoff > streamBackoffCap {
			backoff = streamBackoffCap
		}
	}
}

// runOnce dials the feed, subscribes, and pumps events until the connection
// drops or the context is canceled. Always returns a non-nil error when the
// context is still live.
func (s *Stream) runOnce(ctx context.Context, events chan<- Event) error {
	tok, err := s.token.Token()
	if err != nil {
		return fmt.Errorf("feed: stream token: %w", err)
	}

	conn, _, err := s.dialFunc(ctx, s.url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + tok}},
	})
	if err != nil {
		return fmt.Errorf("feed: dialing change feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "teardown")

	conn.SetReadLimit(readLimitBytes)

	if err := s.subscribe(ctx, conn); err != nil {
		return err
	}

	s.logger.Info("change feed connected",
		slog.String("url", s.url),
		slog.Int("filters", len(s.filters)),
	)

	for {
		ev, err := readEvent(ctx, conn)
		if err != nil {
			return err
		}

		if ev == nil {
			continue // keepalive or unrecognized frame
		}

		select {
		case events <- *ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// subscribe sends the table-filter frame. The server acks by starting the
// event flow; there is no explicit ack frame.
func (s *Stream) subscribe(ctx context.Context, conn *websocket.Conn) error {
	frame := struct {
		Type    string        `json:"type"`
		Filters []TableFilter `json:"filters"`
	}{
		Type:    "subscribe",
		Filters: s.filters,
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("feed: encoding subscribe frame: %w", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("feed: sending subscribe frame: %w", err)
	}

	return nil
}

// readEvent reads one frame and decodes it. Returns (nil, nil) for frames
// that are not change events, so the pump loop can skip them.
func readEvent(ctx context.Context, conn *websocket.Conn) (*Event, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed: reading change feed: %w", err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Table == "" {
		return nil, nil
	}

	return &ev, nil
}
