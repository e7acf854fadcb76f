// Package rpcserver exposes the synthetic sequencer's streaming RPC
// surface (C8) over a WebSocket connection, generalized from the teacher's
// Client{conn,send}/writePump pattern for a single RF stream into a
// bidirectional Setup+Actions-in / LiveReadsResponse-out protocol
// (spec.md §4.8, §6).
package rpcserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"

	"github.com/synthpore/seqdevice/internal/chanrange"
	"github.com/synthpore/seqdevice/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// Server wires the engine into an HTTP mux.
type Server struct {
	engine *engine.Engine
	logger log.Logger
}

// New constructs a Server over an already-started Engine.
func New(eng *engine.Engine, logger log.Logger) *Server {
	return &Server{engine: eng, logger: logger}
}

// Routes registers the streaming endpoint and the auxiliary unary
// endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/live_reads", s.handleLiveReads)
	mux.HandleFunc("/data_types", s.handleDataTypes)
	mux.HandleFunc("/version_info", s.handleVersionInfo)
	mux.HandleFunc("/flow_cell_positions", s.handleFlowCellPositions)
}

// handleLiveReads is the bidirectional streaming endpoint: a subscriber's
// Setup/Actions arrive as JSON text frames, LiveReadsResponse frames go
// back the same way.
func (s *Server) handleLiveReads(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		level.Error(s.logger).Log("msg", "websocket upgrade", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer conn.Close()

	sub := s.engine.NewSubscription(ctx)
	client := &client{conn: conn, sub: sub, logger: s.logger, rng: chanrange.Full()}

	go client.writePump(ctx)
	client.readPump(ctx, cancel)
}

// client binds one WebSocket connection to its Subscription, matching the
// teacher's per-connection Client shape (conn + goroutines reading and
// writing it independently).
type client struct {
	conn   *websocket.Conn
	sub    *engine.Subscription
	logger log.Logger
	rng    chanrange.Range
}

// readPump decodes ingress JSON frames and forwards them into the
// subscription's Action Applier, until the client disconnects
// (spec.md §5 "Cancellation").
func (c *client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		var req engine.Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				level.Info(c.logger).Log("msg", "client disconnected", "err", err)
			}
			return
		}
		if req.Setup != nil {
			c.rng = chanrange.FromSetup(req.Setup)
		}
		select {
		case c.sub.Applier.RequestQueue() <- req:
		case <-ctx.Done():
			return
		}
	}
}

// writePump forwards frames from the Dispatcher to the wire, filtered to
// the subscriber's requested channel range.
func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.sub.Frames:
			if !ok {
				return
			}
			frame = chanrange.Filter(frame, c.rng)
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				level.Info(c.logger).Log("msg", "write failed, closing", "err", err)
				return
			}
		}
	}
}
