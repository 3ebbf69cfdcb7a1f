package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var errEvicted = errors.New("evicted")

// HandleWebSocket upgrades the request and streams hub messages to it until
// either side goes away.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err, "remote", r.RemoteAddr)
			return
		}

		logger.Debug("websocket connected", "remote", r.RemoteAddr)
		err = hub.Serve(r.Context(), conn)
		logger.Debug("websocket disconnected", "remote", r.RemoteAddr, "reason", err)
	}
}

// Serve registers conn with the hub and writes queued messages to it. It
// blocks until the connection ends and reports why.
func (h *Hub) Serve(ctx context.Context, conn *ws.Conn) error {
	p := newPeer()
	h.add(p)
	defer h.remove(p)

	// Dashboards only listen. CloseRead answers control frames and cancels
	// ctx once the peer closes or sends data.
	ctx = conn.CloseRead(ctx)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-p.queue:
			if err := write(ctx, conn, data); err != nil {
				return err
			}
		case <-p.gone:
			conn.Close(ws.StatusTryAgainLater, "too slow")
			return errEvicted
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			conn.CloseNow()
			return ctx.Err()
		}
	}
}

func write(ctx context.Context, conn *ws.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}
