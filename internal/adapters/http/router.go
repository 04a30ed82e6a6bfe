package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	signaladapter "github.com/rnplay/relay/internal/adapters/signal"
	streamadapter "github.com/rnplay/relay/internal/adapters/stream"
	termadapter "github.com/rnplay/relay/internal/adapters/term"
	"github.com/rnplay/relay/internal/app"
	"github.com/rnplay/relay/internal/config"
	"github.com/rnplay/relay/internal/metrics"
	"github.com/rnplay/relay/internal/stream"
)

// SetupRouter builds the single dispatch point: every inbound connection
// is routed by path to exactly one subsystem, and anything unmatched is
// closed immediately.
func SetupRouter(cfg *config.Config, relay *app.Relay, pipeline *stream.Pipeline, collector metrics.Collector) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	signalCtl := &signaladapter.Controller{
		Relay:      relay,
		Pipeline:   pipeline,
		Metrics:    collector,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}
	streamCtl := &streamadapter.Controller{Pipeline: pipeline}
	termCtl := &termadapter.Controller{Config: cfg.Terminal, Metrics: collector}

	r.GET("/ws", signalCtl.Handle)
	r.GET("/terminal", termCtl.Handle)
	r.GET("/stream.mjpeg", streamCtl.Handle)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"message":          "playground relay",
			"connectedClients": relay.Registry.Len(),
			"streaming":        pipeline.Running(),
		})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"signalingActive":  true,
			"connectedClients": relay.Registry.Len(),
			"clients":          relay.Registry.List(),
			"streaming":        pipeline.Running(),
			"viewers":          pipeline.Viewers(),
		})
	})

	r.GET("/clients", func(c *gin.Context) {
		clients := relay.Registry.List()
		c.JSON(http.StatusOK, gin.H{
			"clients": clients,
			"count":   len(clients),
		})
	})

	r.GET("/metrics", gin.WrapH(collector.Handler()))

	// Unmatched paths, upgrade or not, are closed without a handshake.
	r.NoRoute(func(c *gin.Context) {
		log.Warn().Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("unmatched path, closing")
		c.Header("Connection", "close")
		c.AbortWithStatus(http.StatusNotFound)
	})

	return r
}
