package wsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// recordingCallback captures callback invocations for assertions.
type recordingCallback struct {
	mu            sync.Mutex
	opened        bool
	notifications []Notification
	errs          []error
	closed        bool
	closedCh      chan struct{}
	openedCh      chan struct{}
	messageCh     chan Notification
	errCh         chan error
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{
		closedCh:  make(chan struct{}),
		openedCh:  make(chan struct{}),
		messageCh: make(chan Notification, 16),
		errCh:     make(chan error, 16),
	}
}

func (r *recordingCallback) OnOpen(string) {
	r.mu.Lock()
	first := !r.opened
	r.opened = true
	r.mu.Unlock()
	if first {
		close(r.openedCh)
	}
}

func (r *recordingCallback) OnNotification(_ string, n Notification) {
	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	r.mu.Unlock()
	r.messageCh <- n
}

func (r *recordingCallback) OnError(_ string, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.errCh <- err
}

func (r *recordingCallback) OnClose(string) {
	r.mu.Lock()
	first := !r.closed
	r.closed = true
	r.mu.Unlock()
	if first {
		close(r.closedCh)
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

var upgrader = websocket.Upgrader{}

// wsURL converts an httptest server URL to a ws:// URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialDeliversOpenAndMessages(t *testing.T) {
	acks := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		msg := "ack-1\n/t1/measurements/d1\nCREATE\n\n{\"value\":7}"
		if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}

		// Expect the ack echoed back verbatim.
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		acks <- string(data)
	}))
	defer srv.Close()

	cb := newRecordingCallback()
	conn := Dial(context.Background(), wsURL(srv), "t1", cb, Config{})
	defer conn.Disconnect()

	waitClosed(t, cb.openedCh, "open event")
	if conn.State() != StateRunning {
		t.Errorf("State() = %v after open, want running", conn.State())
	}

	n := waitFor(t, cb.messageCh, "notification")
	if n.AckToken != "ack-1" || n.Message != "{\"value\":7}" {
		t.Errorf("notification = %+v, want ack-1 with body", n)
	}
	if tenant, err := n.TenantID(); err != nil || tenant != "t1" {
		t.Errorf("TenantID() = %q, %v, want t1", tenant, err)
	}

	if got := waitFor(t, acks, "ack echo"); got != "ack-1" {
		t.Errorf("server received ack %q, want ack-1", got)
	}
}

func TestDialUpgradeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Prior-session state not yet cleared server-side.
		http.Error(w, "conflict", http.StatusConflict)
	}))
	defer srv.Close()

	cb := newRecordingCallback()
	conn := Dial(context.Background(), wsURL(srv), "t1", cb, Config{})

	err := waitFor(t, cb.errCh, "error event")
	if !errors.Is(err, ErrUpgradeRejected) {
		t.Errorf("error = %v, want ErrUpgradeRejected", err)
	}

	<-conn.Done()
	if conn.State() != StateFailed {
		t.Errorf("State() = %v, want failed", conn.State())
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.opened {
		t.Error("OnOpen fired for a rejected upgrade")
	}
}

func TestDialUnreachable(t *testing.T) {
	cb := newRecordingCallback()
	conn := Dial(context.Background(), "ws://127.0.0.1:1/", "t1", cb, Config{})

	err := waitFor(t, cb.errCh, "error event")
	if !errors.Is(err, ErrTransportFault) {
		t.Errorf("error = %v, want ErrTransportFault", err)
	}
	<-conn.Done()
	if conn.State() != StateFailed {
		t.Errorf("State() = %v, want failed", conn.State())
	}
}

func TestServerCloseDeliversClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	}))
	defer srv.Close()

	cb := newRecordingCallback()
	conn := Dial(context.Background(), wsURL(srv), "t1", cb, Config{})

	waitClosed(t, cb.openedCh, "open event")
	waitClosed(t, cb.closedCh, "close event")

	<-conn.Done()
	if s := conn.State(); s.Healthy() {
		t.Errorf("State() = %v after server close, want unhealthy", s)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Serve until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cb := newRecordingCallback()
	conn := Dial(context.Background(), wsURL(srv), "t1", cb, Config{})
	waitClosed(t, cb.openedCh, "open event")

	if err := conn.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if err := conn.Disconnect(); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}

	waitClosed(t, cb.closedCh, "close event")
	<-conn.Done()
	if conn.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", conn.State())
	}
}

func TestDisconnectBeforeOpen(t *testing.T) {
	// A handshake that never completes: the listener accepts but does not
	// answer, so Disconnect must still resolve the handle.
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	cb := newRecordingCallback()
	conn := Dial(context.Background(), wsURL(srv), "t1", cb, Config{HandshakeTimeout: time.Hour})

	if err := conn.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if conn.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", conn.State())
	}
}

func TestKeepAlivePings(t *testing.T) {
	pings := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.SetPingHandler(func(string) error {
			pings <- struct{}{}
			return nil
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cb := newRecordingCallback()
	conn := Dial(context.Background(), wsURL(srv), "t1", cb, Config{
		KeepAliveInterval: 50 * time.Millisecond,
	})
	defer conn.Disconnect()

	waitClosed(t, cb.openedCh, "open event")
	waitFor(t, pings, "first ping")
	waitFor(t, pings, "second ping")
}
