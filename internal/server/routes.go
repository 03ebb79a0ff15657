package server

import (
	"fmt"
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/chatroom/internal/handlers"
	appmw "github.com/nfrund/chatroom/internal/middleware"
	"github.com/nfrund/chatroom/web"
)

// multipartOverhead is added to the upload size cap for form boundaries and
// headers.
const multipartOverhead = 64 << 10

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "chatroom",
		Subsystem:  "http",
		Registerer: s.registry,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/metrics" || p == "/ws" || strings.HasPrefix(p, "/static")
		},
	}))

	s.E.GET("/health", s.healthHandler.Get)
	s.E.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: s.registry}))

	s.E.GET("/", s.homeHandler.HomeGet)
	s.E.StaticFS("/static", echo.MustSubFS(web.FS, "static"))

	uploadLimit := fmt.Sprintf("%dB", s.Cfg.GetUploadMaxBytes()+multipartOverhead)
	s.E.POST("/upload", s.fileHandler.UploadFile,
		middleware.BodyLimit(uploadLimit),
		appmw.RateLimiterWithRate(s.Cfg.GetUploadRatePerSec()))
	s.E.GET(handlers.UploadURLPrefix+":name", s.fileHandler.ServeFile)

	s.E.GET("/ws", s.gateway.Handler())
}
