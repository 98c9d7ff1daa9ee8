package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fleetrelay/backend/internal/config"
	"github.com/fleetrelay/backend/internal/db"
	"github.com/fleetrelay/backend/internal/http/handlers"
	"github.com/fleetrelay/backend/internal/http/middleware"
	"github.com/fleetrelay/backend/internal/service"

	_ "github.com/fleetrelay/backend/docs"
)

func Router(cfg config.Config, store *db.Store, corr *service.Correlator, buf *service.Buffer, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:      store,
		Correlator: corr,
		Buffer:     buf,
		Validator:  validator.New(),
		Logger:     logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/stats", h.Stats)
	}

	hook := r.Group("/webhook")
	hook.Use(middleware.WebhookSecret(cfg.WebhookSecret))
	{
		hook.POST("", h.Webhook)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
