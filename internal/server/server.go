package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/zemetsskiy/subgate/internal/server/handlers"
	"github.com/zemetsskiy/subgate/internal/server/middleware"
	"github.com/zemetsskiy/subgate/internal/server/ws"
	"github.com/zemetsskiy/subgate/pkg/config"
)

type Server struct {
	Handlers   *handlers.Handlers
	Cfg        *config.Config
	Logger     zerolog.Logger
	Router     *gin.Engine
	WsHub      *ws.WsHub
	httpServer *http.Server
}

func New(cfg *config.Config, h *handlers.Handlers, wsHub *ws.WsHub, logger zerolog.Logger) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	return &Server{
		Handlers: h,
		Cfg:      cfg,
		Logger:   logger,
		Router:   router,
		WsHub:    wsHub,
	}
}

func (s *Server) SetupRouter() {
	mw := middleware.NewMiddleware(s.Logger)
	mw.SetupMiddleware(s.Router)

	store := cookie.NewStore([]byte(s.Cfg.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
	})
	s.Router.Use(sessions.Sessions("subgate_session", store))

	s.Router.LoadHTMLGlob(s.Cfg.Server.TemplateGlob)

	s.Handlers.SetupHandlers(s.Router)
}

func (s *Server) Start() {
	s.SetupRouter()

	go s.WsHub.Run()

	s.httpServer = &http.Server{
		Addr:         s.Cfg.Server.Host + ":" + s.Cfg.Server.Port,
		Handler:      s.Router,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	s.Logger.Info().Msgf("Starting server on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-stopChan
	s.Logger.Info().Msg("Shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	s.Logger.Info().Msg("Server exited gracefully")
}
