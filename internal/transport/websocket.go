// Package transport bridges WebSocket connections into the hub engine. It is
// the bundled transport layer: it registers each accepted socket with the
// connection registry, feeds inbound frames to the dispatcher, and drains
// outbound deliveries through a buffered per-connection send queue.
//
// Authentication is out of scope here: the identity attached to a connection
// is taken verbatim from the X-Roost-Identity header (or identity query
// parameter) and is expected to be established by infrastructure in front of
// the server.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dyluth/roost/pkg/hub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20

	// Outbound messages queued per connection before the client is
	// considered too slow and dropped.
	sendQueueSize = 64
)

// clientMessage is an inbound frame from a WebSocket client.
type clientMessage struct {
	Type string `json:"type"` // invoke | join | leave | broadcast

	// ID is an optional correlation id echoed back on the reply so the
	// client can match results to calls.
	ID string `json:"id,omitempty"`

	Target string            `json:"target,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Group  string            `json:"group,omitempty"`

	// ExcludeSelf omits the sending connection from a broadcast.
	ExcludeSelf bool `json:"exclude_self,omitempty"`
}

// serverMessage is a reply frame correlated to one client call. Deliveries
// (broadcast payloads) use the hub's Delivery encoding instead.
type serverMessage struct {
	Type   string          `json:"type"` // result | error
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Server upgrades HTTP requests to WebSocket connections and wires them into
// the hub.
type Server struct {
	registry   *hub.Registry
	groups     *hub.GroupManager
	dispatcher *hub.Dispatcher
	upgrader   websocket.Upgrader
}

// NewServer creates a WebSocket front-end over the given hub components.
func NewServer(registry *hub.Registry, groups *hub.GroupManager, dispatcher *hub.Dispatcher) *Server {
	return &Server{
		registry:   registry,
		groups:     groups,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP implements http.Handler: it completes the WebSocket handshake,
// registers the connection, and runs the read/write pumps until the socket
// closes. Closing the socket (gracefully or not) unregisters the connection
// and removes it from every group.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Transport] Upgrade failed: %v", err)
		return
	}

	identity := r.Header.Get("X-Roost-Identity")
	if identity == "" {
		identity = r.URL.Query().Get("identity")
	}

	transport := newWSTransport()
	connID, err := s.registry.Register(transport, identity)
	if err != nil {
		// Registration only fails on resource exhaustion; tell the one
		// client and move on.
		log.Printf("[Transport] Rejecting connection: %v", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	c := &client{
		server:    s,
		conn:      conn,
		transport: transport,
		connID:    connID,
	}

	go c.writePump()
	go c.readPump()
}

// wsTransport implements hub.Transport over a buffered send queue drained by
// the connection's write pump.
type wsTransport struct {
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newWSTransport() *wsTransport {
	return &wsTransport{
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// Send queues a payload for the write pump. A full queue means the client is
// not keeping up; following the usual hub convention the connection is
// dropped rather than letting one slow consumer stall fan-out to everyone
// else.
func (t *wsTransport) Send(ctx context.Context, payload []byte) error {
	select {
	case <-t.closed:
		return errors.New("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case t.send <- payload:
		return nil
	case <-t.closed:
		return errors.New("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
		t.Close()
		return errors.New("send queue full, dropping slow consumer")
	}
}

// Close stops the transport. Safe to call multiple times.
func (t *wsTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// client couples one WebSocket to the hub for the duration of the session.
type client struct {
	server    *Server
	conn      *websocket.Conn
	transport *wsTransport
	connID    string
}

// readPump processes inbound frames sequentially, which is what preserves
// per-connection invocation order. It owns the unregister call: when the
// socket dies for any reason, the connection leaves the registry and all of
// its groups.
func (c *client) readPump() {
	defer func() {
		c.server.registry.Unregister(c.connID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Transport] Connection %s read error: %v", c.connID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(serverMessage{Type: "error", Error: "malformed message"})
			continue
		}

		c.handle(ctx, msg)
	}
}

// handle executes one client frame. Failures are reported back to this
// client only; they never affect other connections.
func (c *client) handle(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case "invoke":
		result, err := c.server.dispatcher.DispatchInbound(ctx, c.connID, msg.Target, msg.Args)
		if err != nil {
			c.reply(serverMessage{Type: "error", ID: msg.ID, Error: err.Error()})
			return
		}
		c.reply(serverMessage{Type: "result", ID: msg.ID, Result: result})

	case "join":
		if err := c.server.groups.Join(c.connID, msg.Group); err != nil {
			c.reply(serverMessage{Type: "error", ID: msg.ID, Error: err.Error()})
			return
		}
		c.reply(serverMessage{Type: "result", ID: msg.ID})

	case "leave":
		c.server.groups.Leave(c.connID, msg.Group)
		c.reply(serverMessage{Type: "result", ID: msg.ID})

	case "broadcast":
		selector := hub.Selector{Kind: hub.SelectorAll}
		if msg.Group != "" {
			selector = hub.Selector{Kind: hub.SelectorGroup, Value: msg.Group}
		}
		if msg.ExcludeSelf {
			selector.Exclude = []string{c.connID}
		}

		err := c.server.dispatcher.DispatchOutbound(ctx, &hub.Invocation{
			Target:   msg.Target,
			Args:     msg.Args,
			Origin:   hub.OriginLocal,
			Selector: selector,
		})
		if err != nil {
			c.reply(serverMessage{Type: "error", ID: msg.ID, Error: err.Error()})
			return
		}
		c.reply(serverMessage{Type: "result", ID: msg.ID})

	default:
		c.reply(serverMessage{Type: "error", ID: msg.ID, Error: "unknown message type: " + msg.Type})
	}
}

// reply queues a frame for this client, best-effort.
func (c *client) reply(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Transport] Failed to marshal reply for %s: %v", c.connID, err)
		return
	}
	_ = c.transport.Send(context.Background(), data)
}

// writePump drains the send queue to the socket and keeps the connection
// alive with pings. It exits when the transport closes (unregister) or a
// write fails, closing the socket either way so readPump unwinds too.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.transport.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-c.transport.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
