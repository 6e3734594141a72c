package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/osierhq/osier/internal/handle"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings with this period; a peer that misses one is dropped.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from the peer. Browsers only ever
	// send us close frames.
	maxMessageSize = 512
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// clientHub tracks connected browsers in a handle table so stale
// connections can be dropped without invalidating the rest.
type clientHub struct {
	table *handle.SyncTable[*client]
}

func newClientHub() *clientHub {
	return &clientHub{table: handle.NewSyncTable[*client]()}
}

func (h *clientHub) add(c *client) handle.Handle {
	return h.table.Insert(c)
}

func (h *clientHub) remove(id handle.Handle) {
	if c, ok := h.table.Remove(id); ok {
		close(c.send)
	}
}

// send queues data for every connected client. Clients whose queue is full
// are dropped; a browser that cannot keep up with reload pings is gone.
func (h *clientHub) send(data []byte) {
	var stale []handle.Handle
	h.table.Each(func(id handle.Handle, c *client) bool {
		select {
		case c.send <- data:
		default:
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		h.remove(id)
	}
}

func (h *clientHub) count() int { return h.table.Len() }

func (h *clientHub) closeAll() {
	var all []handle.Handle
	h.table.Each(func(id handle.Handle, c *client) bool {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		all = append(all, id)
		return true
	})
	for _, id := range all {
		h.remove(id)
	}
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin already validated above
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	id := s.clients.add(c)
	s.logger.Debug(r.Context(), "client connected", "clients", s.clients.count())

	go c.writePump()
	c.readPump()

	s.clients.remove(id)
	s.logger.Debug(r.Context(), "client disconnected", "clients", s.clients.count())
}

// checkOrigin validates the request origin against the server's own address
// and any configured extra origins.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	allowed := []string{
		fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		fmt.Sprintf("localhost:%d", s.cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.cfg.Server.Port),
	}
	allowed = append(allowed, s.cfg.Server.AllowedOrigins...)

	for _, host := range allowed {
		if originURL.Host == host {
			return true
		}
	}
	return false
}

// readPump drains the connection until the peer closes it.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	ctx := context.Background()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump delivers queued messages and keeps the connection alive with
// pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
