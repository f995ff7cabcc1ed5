package main

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// checkOrigin admits browsers from the configured CORS origin. "*" admits
// any origin; otherwise requests without an Origin header or from the
// serving host itself are also accepted.
func checkOrigin(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed != "" && strings.EqualFold(origin, allowed) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// handleWS streams the session's snapshots until the client goes away.
func (a *app) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	_, sess := a.session(r)
	updates, cancel := sess.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go readPump(conn, closed)

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-closed:
			return
		case <-a.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
			return
		}
	}
}

// readPump discards client messages and reports when the connection ends.
func readPump(c *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
