package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gorilla/websocket"

	"secure_messenger/internal/database"
	"secure_messenger/internal/hub"
)

type Controller struct {
	ctx      context.Context
	hub      *hub.Hub
	store    *database.Store
	upgrader websocket.Upgrader
}

func NewController(ctx context.Context, h *hub.Hub, store *database.Store, allowedOrigins []string) *Controller {
	return &Controller{
		ctx:   ctx,
		hub:   h,
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// originChecker accepts any origin when the list is empty. Requests with
// no Origin header come from non-browser clients and are accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

func (c *Controller) HandleWS(w http.ResponseWriter, r *http.Request) {
	if c.ctx.Err() != nil {
		c.writeError(w, http.StatusServiceUnavailable, "Shutting down", nil)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	c.hub.Accept(conn)
}

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		c.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return
	}
	c.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Clients: c.hub.Registry().Len(),
	})
}

func (c *Controller) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return
	}

	summaries := make(map[string]*RoomSummary)
	for room, members := range c.hub.Registry().Rooms() {
		summaries[room] = &RoomSummary{Room: room, Members: members}
	}

	if c.store != nil {
		activity, err := c.store.List(r.Context())
		if err != nil {
			c.writeError(w, http.StatusInternalServerError, "Failed to load room activity", err)
			return
		}
		for _, a := range activity {
			s, ok := summaries[a.Room]
			if !ok {
				s = &RoomSummary{Room: a.Room}
				summaries[a.Room] = s
			}
			s.Joins, s.Leaves, s.Relayed = a.Joins, a.Leaves, a.Relayed
		}
	}

	rooms := make([]RoomSummary, 0, len(summaries))
	for _, s := range summaries {
		rooms = append(rooms, *s)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Room < rooms[j].Room })

	c.writeJSON(w, http.StatusOK, RoomsResponse{Lobby: c.hub.Lobby(), Rooms: rooms})
}

func (c *Controller) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write json response", "error", err)
	}
}

func (c *Controller) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		slog.Error(message, "error", err)
	}
	c.writeJSON(w, status, ErrorResponse{Error: message})
}
