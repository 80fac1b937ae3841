package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dlcy/iptv-hunan/internal/httpserver/deps"
	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/utils"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// The API is meant for a local front-end; origin checks are left to the
// CIDR and host middlewares.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Events streams status and error notifications as JSON text frames. The
// last status is sent first so a new client starts with current state.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			d.Logger.Warn("websocket upgrade failed", logger.Error(err))
			return
		}
		defer utils.Close(conn, d.Logger, "websocket")

		events, unsubscribe := d.Notifier.Subscribe()
		defer unsubscribe()

		// Reader: only control frames are expected; a read error means the
		// client went away.
		gone := make(chan struct{})
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if last := d.Notifier.Last(); !last.Time.IsZero() {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(last); err != nil {
				return
			}
		}

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					d.Logger.Debug("websocket write failed", logger.Error(err))
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-gone:
				return
			case <-d.Player.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
		}
	}
}
