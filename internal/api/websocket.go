package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/SentientTrainer/internal/events"
)

const (
	// Backlog sent on connection when ?limit= is absent
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The operator console is served from another origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventFilter reads ?level=, ?prefix=, ?session= and ?limit= from the
// request. defaultLevel applies when no level is given.
func eventFilter(r *http.Request, defaultLevel string) (events.Filter, error) {
	q := r.URL.Query()
	f := events.Filter{
		Prefix:    q.Get("prefix"),
		SessionID: q.Get("session"),
		MinLevel:  defaultLevel,
	}
	if lvl := q.Get("level"); lvl != "" {
		if !events.ValidLevel(lvl) {
			return f, fmt.Errorf("invalid level %q", lvl)
		}
		f.MinLevel = lvl
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

// wsEventsHandler streams the event log to operator consoles.
// Per-frame feedback is logged at debug and hidden unless ?level=debug.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := eventFilter(r, "info")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	backlog := filter
	if backlog.Limit == 0 {
		backlog.Limit = recentEventsCount
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	sub := events.Subscribe()

	send := func(e events.Event) error {
		if !filter.Match(e) {
			return nil
		}
		data, err := json.Marshal(e)
		if err != nil {
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for _, e := range events.Select(backlog) {
		if err := send(e); err != nil {
			log.Printf("ws write recent event failed: %v", err)
			events.Unsubscribe(sub)
			conn.Close()
			return
		}
	}

	done := make(chan struct{})

	// Reader handles pongs and close frames.
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			events.Unsubscribe(sub)
			conn.Close()
			return

		case e, ok := <-sub:
			if !ok {
				conn.Close()
				return
			}
			if err := send(e); err != nil {
				log.Printf("ws write event failed: %v", err)
				events.Unsubscribe(sub)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				events.Unsubscribe(sub)
				conn.Close()
				return
			}
		}
	}
}
