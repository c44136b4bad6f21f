package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MB
)

// Dispatcher is the part of the engine a client talks to.
type Dispatcher interface {
	Dispatch(ctx context.Context, connID string, raw []byte)
	Disconnect(ctx context.Context, connID string)
}

// Client is one upgraded socket. It satisfies realtime.Conn.
type Client struct {
	id          string
	identityID  string
	conn        *websocket.Conn
	send        chan []byte
	limiter     *rate.Limiter
	ConnectedAt time.Time
	lastSeen    atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(parent context.Context, id, identityID string, conn *websocket.Conn, sendBuffer int, limiter *rate.Limiter) *Client {
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		id:          id,
		identityID:  identityID,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		limiter:     limiter,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	c.touch()
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) IdentityID() string { return c.identityID }

// Deliver enqueues frame without blocking. False means the buffer is full
// or the client is closing.
func (c *Client) Deliver(frame []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops both pumps. Safe to call more than once and from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
	})
}

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// run starts the write pump and blocks in the read pump until the socket
// goes away, then tells the dispatcher.
func (c *Client) run(d Dispatcher) {
	go c.writePump()
	c.readPump(d)

	c.Close()
	d.Disconnect(context.Background(), c.id)
	close(c.done)
}

// writePump: take frames from c.send and write them to the socket + ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("connID", c.id).Msg("ws: write failed")
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.ctx.Done():
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is already buffered, all within one write deadline.
func (c *Client) flush() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump: read client frames, enforce the event rate and keep the pong deadline
func (c *Client) readPump(d Dispatcher) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("connID", c.id).Msg("ws: unexpected close")
			}
			return
		}
		c.touch()

		if typ != websocket.TextMessage {
			c.reject(app_error.Validation("binary frames are not supported", "frame"))
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.reject(app_error.RateLimited("too many events, slow down"))
			continue
		}
		d.Dispatch(c.ctx, c.id, data)
	}
}

func (c *Client) reject(err *app_error.AppError) {
	frame, mErr := ws_dto.NewErrorEvent("", err).Marshal()
	if mErr != nil {
		return
	}
	if !c.Deliver(frame) {
		log.Warn().Str("connID", c.id).Msg("ws: dropped error frame")
	}
}
