package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedServer is a minimal change-feed endpoint: it accepts the websocket,
// expects a subscribe frame, then plays the given frames and closes.
func feedServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accepting websocket: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()

		// Subscribe frame first.
		_, sub, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("reading subscribe frame: %v", err)
			return
		}

		assert.Contains(t, string(sub), `"subscribe"`)

		for _, frame := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}

		// Hold the connection open until the client goes away.
		<-ctx.Done()
	}))
}

func TestWatchDeliversEvents(t *testing.T) {
	t.Parallel()

	srv := feedServer(t, []string{
		`{"type":"keepalive"}`,
		`{"table":"emergency_reports","eventType":"UPDATE","new":{"id":"inc-1"},"old":{"id":"inc-1"}}`,
	})
	defer srv.Close()

	stream := NewStream(srv.URL, StaticToken("test-token"),
		[]TableFilter{{Table: "emergency_reports"}}, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	done := make(chan error, 1)

	go func() { done <- stream.Watch(ctx, events) }()

	select {
	case ev := <-events:
		assert.Equal(t, "emergency_reports", ev.Table)
		assert.Equal(t, ActionUpdate, ev.Action)
		assert.Contains(t, string(ev.New), "inc-1")
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatchReconnectsAfterDisconnect(t *testing.T) {
	t.Parallel()

	srv := feedServer(t, []string{
		`{"table":"emergency_reports","eventType":"INSERT","new":{"id":"inc-2"}}`,
	})
	defer srv.Close()

	stream := NewStream(srv.URL, StaticToken("test-token"), nil, testLogger(t))
	stream.sleepFunc = func(context.Context, time.Duration) error { return nil }

	var dials atomic.Int32

	realDial := stream.dialFunc
	stream.dialFunc = func(ctx context.Context, url string, opts *websocket.DialOptions) (*websocket.Conn, *http.Response, error) {
		if dials.Add(1) == 1 {
			return nil, nil, assert.AnError // first dial fails, Watch must retry
		}

		return realDial(ctx, url, opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)

	go stream.Watch(ctx, events)

	select {
	case ev := <-events:
		assert.Equal(t, ActionInsert, ev.Action)
	case <-time.After(5 * time.Second):
		t.Fatal("no event after reconnect")
	}

	require.GreaterOrEqual(t, dials.Load(), int32(2))
}
