package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/teammeng/foscion/internal/config"
	"github.com/teammeng/foscion/internal/http/handlers"
	"github.com/teammeng/foscion/internal/http/middlewares"
	"github.com/teammeng/foscion/internal/observability"
)

// Deps are the collaborators the router serves. Ping and Prom may be nil.
type Deps struct {
	Users handlers.UserService
	Ping  func(ctx context.Context) error
	Prom  *observability.Prom
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if cfg.Env != "dev" && cfg.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.Server.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(middlewares.DefaultMaxBodyBytes))

	// health
	h := handlers.NewHealthHandler(deps.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Prom != nil {
		r.GET("/metrics", gin.WrapH(deps.Prom.Handler()))
	}

	// auth
	auth := handlers.NewAuthHandler(deps.Users, cfg.Server.HideInternalErrors)

	api := r.Group("/", middlewares.RequireJSON())
	api.POST("/signup", auth.SignUp)
	api.POST("/register", auth.SignUp)
	api.POST("/signin", auth.SignIn)

	return r
}
