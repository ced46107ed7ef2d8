package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lexkey/lexkey/internal/metrics"
)

// WebSocket close codes for the watch stream.
const wsCloseInvalidRequest = 4002

// watchSubprotocol is the WebSocket subprotocol spoken on /ws/watch.
const watchSubprotocol = "lexkey.watch.v1"

// watchHandler returns an http.Handler streaming change events as JSON
// frames over WebSocket.
//
// Protocol:
//  1. Client opens a WebSocket with subprotocol "lexkey.watch.v1". An
//     optional ?list=<slug> query restricts events to one list.
//  2. Server sends each notify.Event as a JSON text frame.
//  3. Server closes with 1000 on shutdown; slow clients may miss events.
func (a *API) watchHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reject new connections during shutdown.
		if a.shutdownCh != nil {
			select {
			case <-a.shutdownCh:
				http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
				return
			default:
			}
		}

		filter := r.URL.Query().Get("list")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{watchSubprotocol},
		})
		if err != nil {
			slog.Debug("ws/watch: accept failed", "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()

		if conn.Subprotocol() != watchSubprotocol {
			_ = conn.Close(websocket.StatusCode(wsCloseInvalidRequest), "missing subprotocol "+watchSubprotocol)
			return
		}

		metrics.WatchConnectionsActive.Inc()
		defer metrics.WatchConnectionsActive.Dec()

		ctx := r.Context()
		events, cancel := a.events.Subscribe()
		defer cancel()

		// Discard inbound frames so pings and client closes are processed.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-readDone:
				return
			case ev, ok := <-events:
				if !ok {
					// Broadcaster closed: the server is shutting down.
					_ = conn.Close(websocket.StatusNormalClosure, "server shutting down")
					return
				}
				if filter != "" && ev.ListSlug != filter {
					continue
				}
				if err := wsjson.Write(ctx, conn, ev); err != nil {
					if !errors.Is(err, ctx.Err()) {
						slog.Debug("ws/watch: write failed", "error", err)
					}
					return
				}
				metrics.WatchEventsTotal.Inc()
			}
		}
	})
}
