package signal

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rnplay/relay/internal/app"
	"github.com/rnplay/relay/internal/core"
	"github.com/rnplay/relay/internal/metrics"
	"github.com/rnplay/relay/internal/stream"
)

var ErrBackpressure = errors.New("backpressure")

const writeTimeout = 5 * time.Second

// Controller accepts signaling connections and feeds their envelopes to
// the relay. Frame and stop envelopes ride the same connection and are
// handed to the stream pipeline instead.
type Controller struct {
	Relay      *app.Relay
	Pipeline   *stream.Pipeline
	Metrics    metrics.Collector
	ReadLimit  int64
	PingPeriod time.Duration
}

// Conn wraps a websocket connection with a buffered outbound channel. All
// writes go through TrySend, which fails instead of blocking when the
// buffer is full or the connection is closed.
type Conn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request and runs the connection until it closes. The
// client id is generated here, at accept time, and sent back immediately.
func (ctl *Controller) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	id := core.ClientID(uuid.NewString())
	log.Info().Str("module", "adapters.signal").Str("id", string(id)).Msg("signaling client connected")

	conn := &Conn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	go ctl.writePump(conn)
	ctl.Relay.Greet(id, conn)
	ctl.readPump(id, conn)
}

func (ctl *Controller) writePump(c *Conn) {
	pingPeriod := ctl.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(id core.ClientID, c *Conn) {
	defer func() {
		log.Info().Str("module", "adapters.signal").Str("id", string(id)).Msg("signaling client disconnected")
		ctl.Relay.Disconnect(id)
		c.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ctl.handleEnvelope(id, c, data)
	}
}
