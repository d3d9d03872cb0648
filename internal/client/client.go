package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"secure_messenger/internal/key_exchange"
	"secure_messenger/internal/protocol"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("client closed")

const defaultWriteWait = 10 * time.Second

// Options configures Dial.
type Options struct {
	URL         string
	Username    string
	Avatar      string
	Header      http.Header
	Dialer      *websocket.Dialer
	EventBuffer int
	WriteWait   time.Duration
}

// Client is a chat participant connected to a relay. One goroutine reads
// and decrypts; writes are serialised.
type Client struct {
	conn      *websocket.Conn
	session   *Session
	events    chan Event
	writeWait time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the relay, announces the identity with JOIN and starts
// the read loop.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	session, err := NewSession(opts.Username, opts.Avatar)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}

	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:      conn,
		session:   session,
		events:    make(chan Event, opts.EventBuffer),
		writeWait: opts.WriteWait,
		ctx:       cctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if err := c.write(ctx, protocol.Envelope{Payload: session.Join()}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// Session exposes the identity and key state.
func (c *Client) Session() *Session {
	return c.session
}

// Events is closed when the connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SendMessage encrypts text for one peer and sends it directly.
func (c *Client) SendMessage(ctx context.Context, to, text string, ttl time.Duration) error {
	body, err := c.session.Seal(to, key_exchange.MessageContent{Text: text, TTL: ttl.Milliseconds()})
	if err != nil {
		return err
	}
	msg, err := protocol.NewEncryptedMessage(body)
	if err != nil {
		return err
	}
	return c.write(ctx, protocol.Envelope{To: to, Payload: msg})
}

// SendToRoom encrypts text separately for every other member of the
// current room. It returns how many copies were sent.
func (c *Client) SendToRoom(ctx context.Context, text string, ttl time.Duration) (int, error) {
	self, _ := c.session.Self()
	sent := 0
	for _, m := range c.session.Roster() {
		if m.ID == self.ID {
			continue
		}
		if err := c.SendMessage(ctx, m.ID, text, ttl); err != nil {
			return sent, fmt.Errorf("send to %s: %w", m.ID, err)
		}
		sent++
	}
	return sent, nil
}

func (c *Client) JoinRoom(ctx context.Context, room string) error {
	return c.write(ctx, protocol.Envelope{Payload: &protocol.JoinRoom{RoomName: room}})
}

// SendTyping sends a typing indicator to one peer, or to the room when to
// is empty.
func (c *Client) SendTyping(ctx context.Context, to string, typing bool) error {
	return c.write(ctx, protocol.Envelope{To: to, Payload: &protocol.Typing{IsTyping: typing}})
}

// SendSignal forwards call signalling fields untouched.
func (c *Client) SendSignal(ctx context.Context, kind protocol.Type, to string, fields map[string]json.RawMessage) error {
	if !protocol.IsSignal(kind) {
		return fmt.Errorf("%s is not a signalling type", kind)
	}
	return c.write(ctx, protocol.Envelope{To: to, Payload: &protocol.Signal{Kind: kind, Fields: fields}})
}

// Close ends the connection and discards in-flight work.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(ctx context.Context, env protocol.Envelope) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", env.Type(), err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		close(c.events)
		close(c.done)
		_ = c.Close()
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("relay connection lost", "error", err)
			}
			return
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			slog.Warn("invalid frame from relay", "error", err)
			continue
		}

		if event := c.handle(env); event != nil {
			select {
			case c.events <- event:
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Client) handle(env protocol.Envelope) Event {
	switch p := env.Payload.(type) {
	case *protocol.UserList:
		c.session.ApplyRoster(p.Members)
		self, _ := c.session.Self()
		return RosterUpdated{Members: c.session.Roster(), Self: self}
	case *protocol.SystemMessage:
		return SystemNotice{Text: p.Text}
	case *protocol.EncryptedMessage:
		body, err := p.Sealed()
		if err != nil {
			slog.Debug("dropping unreadable message", "from", p.From, "error", err)
			return nil
		}
		content, err := c.session.Open(p.From, body)
		if err != nil {
			slog.Debug("dropping undecryptable message", "from", p.From, "error", err)
			return nil
		}
		peer, _ := c.session.Peer(p.From)
		return MessageReceived{
			From:     p.From,
			Username: peer.Username,
			Content:  content,
		}
	case *protocol.Typing:
		return TypingChanged{From: p.From, IsTyping: p.IsTyping}
	case *protocol.Signal:
		return SignalReceived{Kind: p.Kind, From: p.From, Fields: p.Fields}
	default:
		slog.Debug("ignoring frame", "type", env.Type())
		return nil
	}
}
