package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"secure_messenger/internal/database"
	"secure_messenger/internal/key_exchange"
	"secure_messenger/internal/protocol"
)

// ErrUnroutableTarget marks a direct message whose target is not connected.
// It is logged and counted, never sent back to anyone.
var ErrUnroutableTarget = errors.New("unroutable target")

// ActivitySink receives room activity events. Implementations must not block.
type ActivitySink interface {
	Record(room string, kind database.ActivityKind)
}

// Options configures a Hub.
type Options struct {
	Lobby       string
	NewID       func() string
	Registerer  prometheus.Registerer
	Activity    ActivitySink
	Client      ClientOptions
	InboxBuffer int
}

type inbound struct {
	client *Client
	env    protocol.Envelope
}

// Hub is the relay router. A single goroutine (Run) owns every registry
// mutation and every broadcast enumeration.
type Hub struct {
	ctx        context.Context
	registry   *Registry
	clients    map[ConnID]*Client
	inBox      chan inbound
	register   chan *Client
	unregister chan *Client
	lobby      string
	newID      func() string
	activity   ActivitySink
	metrics    *hubMetrics
	clientOpts ClientOptions
	nextConn   atomic.Uint64
}

func NewHub(ctx context.Context, opts Options) *Hub {
	if opts.Lobby == "" {
		opts.Lobby = "Lobby"
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.InboxBuffer <= 0 {
		opts.InboxBuffer = 256
	}
	return &Hub{
		ctx:        ctx,
		registry:   NewRegistry(),
		clients:    make(map[ConnID]*Client),
		inBox:      make(chan inbound, opts.InboxBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		lobby:      opts.Lobby,
		newID:      opts.NewID,
		activity:   opts.Activity,
		metrics:    newHubMetrics(opts.Registerer),
		clientOpts: opts.Client.withDefaults(),
	}
}

// Registry exposes the live registry for read-only snapshots.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Lobby returns the room new identities are placed in.
func (h *Hub) Lobby() string {
	return h.lobby
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			slog.Info("Hub shutting down", "total_clients", len(h.clients))
			for _, c := range h.clients {
				c.Close()
			}
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.inBox:
			h.dispatchMessage(msg)
		}
	}
}

// Accept takes ownership of an upgraded websocket connection.
func (h *Hub) Accept(conn *websocket.Conn) *Client {
	id := ConnID(h.nextConn.Add(1))
	client := newClient(h.ctx, id, conn, h.clientOpts, h.metrics, h.deliver, h.Unregister)

	if !h.Register(client) {
		client.Close()
		_ = conn.Close()
		return client
	}

	// Start goroutines for reading and writing
	go client.WritePump()
	go client.ReadPump()
	return client
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) deliver(client *Client, env protocol.Envelope) {
	select {
	case h.inBox <- inbound{client: client, env: env}:
	case <-client.ctx.Done():
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clients[client.id] = client
	client.state = stateUnjoined
	h.metrics.connOpened()
	slog.Info("Client connected", "conn", client.id, "total_clients", len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)
	h.metrics.connClosed()

	if client.state == stateJoined {
		if entry, ok := h.registry.Remove(client.id); ok {
			h.metrics.identityLeft()
			h.record(entry.Room, database.ActivityLeave)
			h.broadcastRoster(entry.Room)
			h.broadcastSystem(entry.Room, fmt.Sprintf("%s has left.", entry.Username))
			slog.Info("identity left", "id", entry.ID, "room", entry.Room)
		}
	}
	client.state = stateClosed
	client.Close()
	slog.Info("Client disconnected", "conn", client.id, "total_clients", len(h.clients))
}

func (h *Hub) dispatchMessage(msg inbound) {
	client := msg.client
	if _, ok := h.clients[client.id]; !ok {
		return
	}

	typ := string(msg.env.Type())
	h.metrics.frameReceived(typ)
	start := time.Now()
	defer func() { h.metrics.observeDispatch(typ, time.Since(start)) }()

	switch p := msg.env.Payload.(type) {
	case *protocol.Join:
		h.handleJoin(client, p)
	case *protocol.JoinRoom:
		h.handleJoinRoom(client, p)
	case *protocol.EncryptedMessage:
		h.relay(client, msg.env.To, p)
	case *protocol.Typing:
		h.relay(client, msg.env.To, p)
	case *protocol.Signal:
		h.relay(client, msg.env.To, p)
	case *protocol.UserList, *protocol.SystemMessage:
		slog.Warn("ignoring server-only message from client", "conn", client.id, "type", typ)
		h.metrics.frameDropped("server_only")
	default:
		slog.Warn("unhandled message type", "conn", client.id, "type", typ)
		h.metrics.frameDropped("unhandled")
	}
}

func (h *Hub) handleJoin(client *Client, join *protocol.Join) {
	if client.state != stateUnjoined {
		slog.Warn("ignoring JOIN from joined connection", "conn", client.id, "state", client.state.String())
		h.metrics.frameDropped("duplicate_join")
		return
	}

	username := strings.TrimSpace(join.Username)
	if username == "" || len(join.PublicKey) == 0 {
		slog.Warn("rejecting JOIN with missing fields", "conn", client.id)
		h.metrics.frameDropped("invalid_join")
		return
	}
	if _, err := key_exchange.ImportPublicKey(join.PublicKey); err != nil {
		slog.Warn("rejecting JOIN with unusable public key", "conn", client.id, "error", err)
		h.metrics.frameDropped("invalid_join")
		return
	}

	entry, err := h.registry.Add(client.id, Identity{
		ID:        h.newID(),
		Username:  username,
		Avatar:    join.Avatar,
		PublicKey: join.PublicKey,
	}, h.lobby)
	if err != nil {
		slog.Error("failed to register identity", "conn", client.id, "error", err)
		return
	}

	client.state = stateJoined
	h.metrics.identityJoined()
	h.record(entry.Room, database.ActivityJoin)
	slog.Info("identity joined", "id", entry.ID, "username", entry.Username, "room", entry.Room)

	h.broadcastRoster(entry.Room)
	h.broadcastSystem(entry.Room, fmt.Sprintf("%s has joined.", entry.Username))
}

func (h *Hub) handleJoinRoom(client *Client, req *protocol.JoinRoom) {
	if client.state != stateJoined {
		slog.Warn("ignoring JOIN_ROOM before JOIN", "conn", client.id)
		h.metrics.frameDropped("not_joined")
		return
	}

	room := strings.TrimSpace(req.RoomName)
	if room == "" {
		slog.Warn("ignoring JOIN_ROOM without room name", "conn", client.id)
		h.metrics.frameDropped("malformed")
		return
	}

	entry, ok := h.registry.Lookup(client.id)
	if !ok || entry.Room == room {
		return
	}

	oldRoom, _ := h.registry.UpdateRoom(client.id, room)
	h.record(oldRoom, database.ActivityLeave)
	h.record(room, database.ActivityJoin)
	slog.Info("identity changed room", "id", entry.ID, "from", oldRoom, "to", room)

	h.broadcastRoster(oldRoom)
	h.broadcastRoster(room)
	h.broadcastSystem(room, fmt.Sprintf("%s joined room %s", entry.Username, room))
}

// relay forwards a client payload with its sender overwritten by the
// registry id. With a target it goes to that connection only, otherwise to
// everyone else in the sender's room.
func (h *Hub) relay(client *Client, to string, payload protocol.Relayed) {
	if client.state != stateJoined {
		slog.Warn("ignoring message before JOIN", "conn", client.id, "type", payload.Type())
		h.metrics.frameDropped("not_joined")
		return
	}
	sender, ok := h.registry.Lookup(client.id)
	if !ok {
		return
	}

	if claimed := payload.Sender(); claimed != "" && claimed != sender.ID {
		slog.Debug("overwriting claimed sender", "claimed", claimed, "id", sender.ID)
	}
	payload.SetSender(sender.ID)

	frame, err := protocol.Encode(protocol.Envelope{To: to, Payload: payload})
	if err != nil {
		slog.Error("failed to encode relayed message", "error", err)
		return
	}

	typ := string(payload.Type())
	if to != "" {
		target, ok := h.lookupClient(to)
		if !ok {
			slog.Debug("dropping message", "type", typ, "to", to, "error", ErrUnroutableTarget)
			h.metrics.frameDropped("unroutable")
			return
		}
		if target.Send(frame) {
			h.metrics.frameRelayed(typ, "direct")
		}
		h.record(sender.Room, database.ActivityRelay)
		return
	}

	sent := 0
	for _, member := range h.registry.ListByRoom(sender.Room) {
		if member.Conn == client.id {
			continue
		}
		if c, ok := h.clients[member.Conn]; ok && c.Send(frame) {
			sent++
		}
	}
	if sent > 0 {
		h.metrics.frameRelayed(typ, "room")
	}
	h.record(sender.Room, database.ActivityRelay)
}

func (h *Hub) lookupClient(id string) (*Client, bool) {
	conn, ok := h.registry.ConnByID(id)
	if !ok {
		return nil, false
	}
	c, ok := h.clients[conn]
	return c, ok
}

func (h *Hub) broadcastRoster(room string) {
	h.broadcast(room, h.registry.Roster(room))
}

func (h *Hub) broadcastSystem(room, text string) {
	h.broadcast(room, &protocol.SystemMessage{Text: text})
}

func (h *Hub) broadcast(room string, payload protocol.Payload) {
	frame, err := protocol.Encode(protocol.Envelope{Payload: payload})
	if err != nil {
		slog.Error("failed to encode broadcast", "type", payload.Type(), "error", err)
		return
	}
	for _, member := range h.registry.ListByRoom(room) {
		if c, ok := h.clients[member.Conn]; ok {
			c.Send(frame)
		}
	}
}

func (h *Hub) record(room string, kind database.ActivityKind) {
	if h.activity != nil {
		h.activity.Record(room, kind)
	}
}
