package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chazu/warden/isolate"
)

func TestWatchStreamsTicks(t *testing.T) {
	srv, iso := newTestServer(t, isolate.WithStep(42))

	c, err := iso.Alloc(map[string]float64{"x": 0})
	if err != nil {
		t.Fatalf("Alloc returned error: %v", err)
	}
	if err := iso.Setup(c); err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/watch"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	// The observer is registered just after the handshake; give the
	// handler a moment before mutating.
	time.Sleep(100 * time.Millisecond)
	for k := 0; k < 3; k++ {
		if _, err := iso.Mutate(); err != nil {
			t.Fatalf("Mutate returned error: %v", err)
		}
	}

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var tick isolate.Tick
	if err := ws.ReadJSON(&tick); err != nil {
		t.Fatalf("ReadJSON returned error: %v", err)
	}
	if tick.By != isolate.ByOwner {
		t.Errorf("tick.By = %q, want %q", tick.By, isolate.ByOwner)
	}
	if tick.Field != "x" || tick.Seq == 0 {
		t.Errorf("tick = %+v, want field x with a nonzero seq", tick)
	}
}
