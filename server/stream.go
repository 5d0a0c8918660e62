package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/chazu/warden/isolate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// watch upgrades the connection to a websocket and streams one JSON
// Tick message per applied mutation. A slow client drops ticks rather
// than back-pressuring the mutation path.
func (s *Service) watch(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	ticks := make(chan isolate.Tick, 64)
	unsubscribe := s.worker.Isolate().OnTick(func(t isolate.Tick) {
		select {
		case ticks <- t:
		default:
			// observer must never block a mutation
		}
	})

	closed := make(chan struct{})
	go func() {
		// read loop: we expect no messages, but reading is how we
		// learn the peer went away
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		unsubscribe()
		_ = ws.Close()
	}()
	for {
		select {
		case t := <-ticks:
			if err := ws.WriteJSON(t); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
