package websocket

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"github.com/xenn00/teamchat/internal/realtime"
	"golang.org/x/time/rate"
)

const defaultSendBuffer = 256

// Engine is what the handler needs from realtime.Engine.
type Engine interface {
	Dispatcher
	Authenticate(ctx context.Context, credential string) (realtime.Identity, error)
	Attach(ctx context.Context, identity realtime.Identity, conn realtime.Conn) error
	ConnectionCount() int
}

type Config struct {
	SendBuffer       int
	MaxConnections   int
	ConnectionsPerIP int
	EventsPerSecond  float64
	EventBurst       int
	AllowedOrigins   []string
}

// Handler authenticates and upgrades /ws requests, then hands each socket
// to the engine.
type Handler struct {
	engine   Engine
	cfg      Config
	ips      *ipLimiter
	upgrader websocket.Upgrader
	baseCtx  context.Context
	active   sync.WaitGroup
}

func NewHandler(ctx context.Context, engine Engine, cfg Config) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	h := &Handler{
		engine:  engine,
		cfg:     cfg,
		ips:     newIPLimiter(cfg.ConnectionsPerIP),
		baseCtx: ctx,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxConnections > 0 && h.engine.ConnectionCount() >= h.cfg.MaxConnections {
		writeAppError(w, app_error.RateLimited("server is at connection capacity"))
		return
	}

	ip := clientIP(r)
	if !h.ips.acquire(ip) {
		log.Warn().Str("ip", ip).Msg("ws: per-ip connection limit reached")
		writeAppError(w, app_error.RateLimited("too many connections from this address"))
		return
	}
	defer h.ips.release(ip)

	identity, err := h.engine.Authenticate(r.Context(), getTokenFromRequest(r))
	if err != nil {
		appErr := app_error.From(err)
		log.Debug().Err(err).Str("ip", ip).Str("kind", string(appErr.Kind)).Msg("ws: handshake refused")
		writeAppError(w, appErr)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Error().Err(err).Msg("ws: upgrade failed")
		return
	}

	client := newClient(h.baseCtx, uuid.NewString(), identity.ID, conn, h.cfg.SendBuffer, h.newLimiter())
	if err := h.engine.Attach(h.baseCtx, identity, client); err != nil {
		client.Close()
		h.refuse(conn, err)
		return
	}

	h.active.Add(1)
	defer h.active.Done()
	client.run(h.engine)
}

// Drain waits until every attached client has been disconnected from the
// engine, or ctx is done.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) newLimiter() *rate.Limiter {
	if h.cfg.EventsPerSecond <= 0 {
		return nil
	}
	burst := h.cfg.EventBurst
	if burst <= 0 {
		burst = int(h.cfg.EventsPerSecond)
	}
	return rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), max(burst, 1))
}

// refuse reports an attach failure on the raw socket, before any pump runs.
func (h *Handler) refuse(conn *websocket.Conn, err error) {
	appErr := app_error.From(err)
	log.Warn().Err(err).Str("kind", string(appErr.Kind)).Msg("ws: connection could not be attached")

	deadline := time.Now().Add(writeWait)
	if frame, mErr := ws_dto.NewErrorEvent("", appErr).Marshal(); mErr == nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, appErr.Message), deadline)
	_ = conn.Close()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, r.Header.Get("Origin"))
}
