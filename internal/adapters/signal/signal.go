package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voiceline/signaling/internal/app"
	"github.com/voiceline/signaling/internal/config"
	"github.com/voiceline/signaling/internal/core"
	"github.com/voiceline/signaling/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// WSGateway accepts websocket connections and translates their frames into
// controller operations. Each connection gets a server-assigned identity
// valid only for its lifetime.
type WSGateway struct {
	ctrl     *app.Controller
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewWSGateway(ctrl *app.Controller, cfg *config.Config) *WSGateway {
	return &WSGateway{
		ctrl: ctrl,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
	}
}

// originChecker allows the configured origins, or any origin when the list
// is empty or contains "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (g *WSGateway) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new WS connection")

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	g.ctrl.Register(id, conn)

	ctx, cancel := context.WithCancel(ctx)
	go g.writePump(ctx, conn)
	go g.readPump(ctx, cancel, id, conn)
}
