package term

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rnplay/relay/internal/config"
	"github.com/rnplay/relay/internal/metrics"
	"github.com/rnplay/relay/internal/term"
)

const writeTimeout = 5 * time.Second

// Controller bridges one terminal WebSocket connection onto one spawned
// shell. Connections are fully independent: no registry, no shared state.
type Controller struct {
	Config  config.TerminalConfig
	Metrics metrics.Collector
}

// controlMessage is the inbound envelope: input feeds the shell, resize
// changes the PTY dimensions. Unknown types are ignored.
type controlMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// safeConn serializes websocket writes; gorilla connections do not allow
// concurrent writers and both the PTY reader and the control loop write.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (sc *safeConn) write(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sc.conn.WriteMessage(messageType, data)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request, spawns the shell and runs both directions
// until either side ends. A spawn failure sends one diagnostic and closes.
func (ctl *Controller) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.term").Msg("ws upgrade")
		return
	}
	conn := &safeConn{conn: ws}

	sess, err := term.Start(ctl.Config.Shell, ctl.Config.Cols, ctl.Config.Rows)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.term").Msg("failed to spawn shell")
		diag := fmt.Sprintf("\r\n\x1b[31mError spawning terminal: %v\x1b[0m\r\n", err)
		_ = conn.write(websocket.TextMessage, []byte(diag))
		_ = ws.Close()
		return
	}
	ctl.Metrics.TerminalOpened()
	log.Info().Str("module", "adapters.term").Msg("terminal connected")

	// Shell output to socket, verbatim and in order. Shell exit closes
	// the connection.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := sess.Read(buf)
			if n > 0 {
				if werr := conn.write(websocket.BinaryMessage, buf[:n]); werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		_ = ws.Close()
	}()

	ctl.controlLoop(conn, sess)

	sess.Close()
	_ = ws.Close()
	ctl.Metrics.TerminalClosed()
	log.Info().Str("module", "adapters.term").Msg("terminal disconnected")
}

func (ctl *Controller) controlLoop(conn *safeConn, sess *term.Session) {
	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "adapters.term").Msg("bad control message, dropping")
			continue
		}

		switch msg.Type {
		case "input":
			if _, err := sess.Write([]byte(msg.Data)); err != nil {
				log.Warn().Err(err).Str("module", "adapters.term").Msg("pty write failed")
			}
		case "resize":
			if err := sess.Resize(msg.Cols, msg.Rows); err != nil {
				log.Warn().Err(err).Str("module", "adapters.term").Msg("pty resize failed")
			}
		}
	}
}
