package stream

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rnplay/relay/internal/stream"
)

// Boundary is the fixed multipart marker the encoder emits between frames.
const Boundary = "ffserver"

// Controller serves the motion stream to pull-based HTTP viewers. Each
// viewer gets its own subscription and receives chunks only from the
// moment it connects.
type Controller struct {
	Pipeline *stream.Pipeline
}

// Handle streams concatenated encoded chunks until the viewer disconnects.
// Plain GET, no upgrade: the response channel itself is the sink.
func (ctl *Controller) Handle(c *gin.Context) {
	sub := ctl.Pipeline.Subscribe()
	defer ctl.Pipeline.Unsubscribe(sub)

	log.Info().Str("module", "adapters.stream").Str("remote", c.ClientIP()).Msg("viewer connected")
	defer log.Info().Str("module", "adapters.stream").Str("remote", c.ClientIP()).Msg("viewer disconnected")

	h := c.Writer.Header()
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary="+Boundary)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Connection", "close")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case chunk, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(chunk); err != nil {
				log.Warn().Err(err).Str("module", "adapters.stream").Msg("viewer write failed")
				return
			}
			c.Writer.Flush()
		}
	}
}
