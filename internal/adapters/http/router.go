package http

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/voiceline/signaling/internal/adapters/signal"
	"github.com/voiceline/signaling/internal/app"
	"github.com/voiceline/signaling/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *app.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		r.Use(cors.New(corsCfg))
	} else {
		r.Use(cors.Default())
	}

	log.Info().Str("module", "adapters.http").Strs("origins", cfg.AllowedOrigins).Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/stats", func(c *gin.Context) {
		rooms, conns := ctrl.Stats()
		c.JSON(200, gin.H{"rooms": rooms, "connections": conns})
	})

	gw := signal.NewWSGateway(ctrl, cfg)
	api.GET("/ws/signal", func(c *gin.Context) {
		gw.HandleSignal(ctx, c)
	})

	return r
}
