package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"secure_messenger/internal/protocol"
)

// ClientOptions bounds a single connection.
type ClientOptions struct {
	SendQueue       int
	MaxFrameBytes   int64
	FramesPerSecond float64
	Burst           int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
}

// DefaultClientOptions mirrors the config defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendQueue:       256,
		MaxFrameBytes:   64 * 1024,
		FramesPerSecond: 50,
		Burst:           100,
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
	}
}

// Client is one websocket connection owned by the hub.
type Client struct {
	id        ConnID
	ctx       context.Context
	cancel    context.CancelFunc
	conn      *websocket.Conn
	send      chan []byte
	opts      ClientOptions
	limiter   *rate.Limiter
	metrics   *hubMetrics
	onFrame   func(*Client, protocol.Envelope)
	onClose   func(*Client)
	closeOnce sync.Once

	// owned by the hub goroutine
	state connState
}

func newClient(
	ctx context.Context,
	id ConnID,
	conn *websocket.Conn,
	opts ClientOptions,
	metrics *hubMetrics,
	onFrame func(*Client, protocol.Envelope),
	onClose func(*Client),
) *Client {
	ctx, cancel := context.WithCancel(ctx)

	limit := rate.Inf
	if opts.FramesPerSecond > 0 {
		limit = rate.Limit(opts.FramesPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		conn:    conn,
		send:    make(chan []byte, opts.SendQueue),
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
		onFrame: onFrame,
		onClose: onClose,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		if c.onClose != nil {
			c.onClose(c)
		}
		c.Close()
	}()

	if c.opts.MaxFrameBytes > 0 {
		c.conn.SetReadLimit(c.opts.MaxFrameBytes)
	}
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				// If the loop is ending due to context cancellation, don't log it as an error.
				if c.ctx.Err() != nil {
					return
				}
				if errors.Is(err, websocket.ErrReadLimit) {
					slog.Warn("frame exceeds read limit, closing", "conn", c.id)
					c.metrics.frameDropped("oversize")
					return
				}
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					slog.Error("websocket error", "conn", c.id, "error", err)
				}
				return
			}

			if !c.limiter.Allow() {
				slog.Warn("inbound rate exceeded, dropping frame", "conn", c.id)
				c.metrics.frameDropped("rate_limited")
				continue
			}

			env, err := protocol.Decode(message)
			if err != nil {
				slog.Warn("invalid websocket payload", "conn", c.id, "error", err)
				if errors.Is(err, protocol.ErrUnknownType) {
					c.metrics.frameDropped("unknown_type")
				} else {
					c.metrics.frameDropped("malformed")
				}
				continue
			}

			if c.onFrame != nil {
				c.onFrame(c, env)
			}
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		err := c.conn.Close()
		if err != nil {
			slog.Debug("failed to close websocket connection", "conn", c.id, "error", err)
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait),
			)
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("websocket write failed", "conn", c.id, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Send queues a frame without blocking. A client whose queue is full is
// too slow to keep up and gets disconnected.
func (c *Client) Send(msg []byte) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		slog.Warn("send queue full, closing slow client", "conn", c.id)
		c.metrics.frameDropped("slow_consumer")
		c.Close()
		return false
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(c.cancel)
}

func (c *Client) extendReadDeadline() {
	if c.opts.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	}
}

func (o ClientOptions) withDefaults() ClientOptions {
	def := DefaultClientOptions()
	if o.SendQueue <= 0 {
		o.SendQueue = def.SendQueue
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = def.MaxFrameBytes
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = 2 * o.PingInterval
	}
	if o.WriteWait <= 0 {
		o.WriteWait = def.WriteWait
	}
	return o
}
