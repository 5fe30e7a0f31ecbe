package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithToken enables manager connections: a client that authenticates with
// token may broadcast and query status over the socket. Without a token
// only listeners are accepted.
func WithToken(token string) HubOption {
	return func(h *Hub) { h.token = token }
}

// WithHubLogger sets the logger.
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithPingInterval sets the keepalive ping interval. Peers that do not
// answer within twice the interval are dropped.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) { h.pingPeriod = d }
}

// WithCheckOrigin replaces the origin check of the upgrader.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// Hub accepts WebSocket connections and fans notifications out to the
// listeners registered for a schema and channel.
//
// All subscription state is owned by the Run loop; connections talk to it
// over channels.
type Hub struct {
	upgrader   websocket.Upgrader
	token      string
	logger     *zap.Logger
	pingPeriod time.Duration

	connect    chan *client
	subscribe  chan subscription
	disconnect chan *client
	broadcast  chan broadcastReq
	status     chan chan Status
	done       chan struct{}
}

type subscription struct {
	c   *client
	key string
}

type broadcastReq struct {
	key   string
	frame []byte
	reply chan int
}

// NewHub creates a hub. Call Run to start it.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:     zap.NewNop(),
		pingPeriod: 54 * time.Second,
		connect:    make(chan *client),
		subscribe:  make(chan subscription),
		disconnect: make(chan *client),
		broadcast:  make(chan broadcastReq),
		status:     make(chan chan Status),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run owns the subscription table until ctx is cancelled, then drops every
// connection.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]struct{})
	channels := make(map[string]map[*client]struct{})

	drop := func(c *client) {
		if _, ok := clients[c]; !ok {
			return
		}
		delete(clients, c)
		if c.key != "" {
			delete(channels[c.key], c)
			if len(channels[c.key]) == 0 {
				delete(channels, c.key)
			}
		}
		close(c.done)
	}

	defer func() {
		close(h.done)
		for c := range clients {
			drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.connect:
			clients[c] = struct{}{}

		case s := <-h.subscribe:
			if _, ok := clients[s.c]; !ok {
				continue
			}
			s.c.key = s.key
			set, ok := channels[s.key]
			if !ok {
				set = make(map[*client]struct{})
				channels[s.key] = set
			}
			set[s.c] = struct{}{}
			h.logger.Debug("listener registered", zap.String("client", s.c.id), zap.String("key", s.key))

		case c := <-h.disconnect:
			drop(c)

		case b := <-h.broadcast:
			n := 0
			for c := range channels[b.key] {
				select {
				case c.send <- outbound{data: b.frame}:
					n++
				default:
					h.logger.Warn("dropping slow listener", zap.String("client", c.id))
					drop(c)
				}
			}
			b.reply <- n

		case reply := <-h.status:
			st := Status{Connections: make(map[string]int, len(channels))}
			for key, set := range channels {
				st.Connections[key] = len(set)
			}
			reply <- st
		}
	}
}

// Broadcast sends a notification to every listener registered for schema
// and channel and returns how many received it.
func (h *Hub) Broadcast(schema, channel string, n Notification) (int, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return 0, err
	}
	return h.publish(Key(schema, channel), raw)
}

func (h *Hub) publish(key string, message json.RawMessage) (int, error) {
	req := broadcastReq{key: key, frame: notificationFrame(message), reply: make(chan int, 1)}
	select {
	case h.broadcast <- req:
	case <-h.done:
		return 0, ErrClosed
	}
	n := <-req.reply
	h.logger.Debug("notification sent", zap.String("key", key), zap.Int("receivers", n))
	return n, nil
}

// Status returns the listener count per subscription key.
func (h *Hub) Status() (Status, error) {
	reply := make(chan Status, 1)
	select {
	case h.status <- reply:
	case <-h.done:
		return Status{}, ErrClosed
	}
	return <-reply, nil
}

// Listeners returns how many listeners are registered for schema and channel.
func (h *Hub) Listeners(schema, channel string) int {
	st, err := h.Status()
	if err != nil {
		return 0
	}
	return st.Connections[Key(schema, channel)]
}

// ServeHTTP upgrades the request and serves the connection until either
// side closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		id:   uuid.NewString(),
		send: make(chan outbound, sendBuffer),
		done: make(chan struct{}),
	}
	select {
	case h.connect <- c:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

type outbound struct {
	data  []byte
	close bool
}

// client is one connection. key is only touched by the Run loop.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	id      string
	key     string
	manager bool
	send    chan outbound
	done    chan struct{}
}

// readPump handles frames from the peer. The first frame decides the role
// of the connection: register makes it a listener, authenticate a manager.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.disconnect <- c:
		case <-c.hub.done:
		}
	}()

	pongWait := 2 * c.hub.pingPeriod
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	registered := false
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		env, err := decodeEnvelope(data, TypeRegister, TypeAuthenticate, TypeBroadcast, TypeStatus)
		if err != nil {
			c.fail(fmt.Sprintf("invalid command: %s", truncate(data, 200)))
			return
		}

		switch {
		case env.Type == TypeRegister && !registered && !c.manager:
			if env.Schema == "" {
				c.fail("invalid schema: " + env.Schema)
				return
			}
			c.enqueue(outbound{data: ackFrame()})
			select {
			case c.hub.subscribe <- subscription{c: c, key: Key(env.Schema, env.Channel)}:
			case <-c.hub.done:
				return
			}
			registered = true

		case env.Type == TypeAuthenticate && !registered && !c.manager:
			if c.hub.token == "" || env.Token != c.hub.token {
				c.fail("authentication failed")
				return
			}
			c.manager = true
			c.enqueue(outbound{data: ackFrame()})
			c.hub.logger.Debug("manager authenticated", zap.String("client", c.id))

		case env.Type == TypeBroadcast && c.manager:
			if env.Schema == "" {
				c.fail("invalid schema: " + env.Schema)
				return
			}
			if len(env.Message) == 0 || string(env.Message) == "null" {
				c.fail("missing message")
				return
			}
			c.enqueue(outbound{data: ackFrame()})
			if _, err := c.hub.publish(Key(env.Schema, env.Channel), env.Message); err != nil {
				return
			}

		case env.Type == TypeStatus && c.manager:
			st, err := c.hub.Status()
			if err != nil {
				return
			}
			raw, _ := json.Marshal(st)
			frame, _ := json.Marshal(Envelope{Type: TypeStatus, Message: raw})
			c.enqueue(outbound{data: ackFrame()})
			c.enqueue(outbound{data: frame})

		default:
			c.fail("invalid command: " + env.Type)
			return
		}
	}
}

// enqueue hands a frame to the write pump unless the connection is gone.
func (c *client) enqueue(o outbound) {
	select {
	case c.send <- o:
	case <-c.done:
	}
}

// fail sends an error frame and closes the connection after it.
func (c *client) fail(msg string) {
	c.enqueue(outbound{data: errorFrame(msg), close: true})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case o := <-c.send:
			if !c.write(o) {
				return
			}

		case <-c.done:
			// Flush what the read side queued before it went away.
			for {
				select {
				case o := <-c.send:
					if !c.write(o) {
						return
					}
				default:
					c.closeFrame(websocket.CloseNormalClosure)
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write sends one frame and reports whether the connection stays open.
func (c *client) write(o outbound) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, o.data); err != nil {
		c.hub.logger.Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
		return false
	}
	if o.close {
		c.closeFrame(websocket.ClosePolicyViolation)
		return false
	}
	return true
}

func (c *client) closeFrame(code int) {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(writeWait))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
