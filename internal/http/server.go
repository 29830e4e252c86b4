package http

import (
	"context"
	stdhttp "net/http"
	"strconv"

	"studio-store/internal/auth"
	"studio-store/internal/config"
	"studio-store/internal/http/handler"
	"studio-store/internal/http/middleware"
	"studio-store/pkg/profiling"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	jsonKeyStatus = "status"
	statusOK      = "ok"
	// bodyLimitSlack is added to the image limit so project documents of a
	// similar size still pass the global body limit.
	bodyLimitSlack = 1 << 20
)

type ServerDependencies struct {
	Config         *config.Config
	Images         handler.ImageStore
	Projects       handler.ProjectStore
	Users          handler.UserDirectory
	Sessions       handler.SessionManager
	AuthMiddleware *auth.Middleware
}

type Server struct {
	echo *echo.Echo
	deps *ServerDependencies
}

func NewServer(deps *ServerDependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Server.ReadTimeout = deps.Config.Server.ReadTimeout
	e.Server.WriteTimeout = deps.Config.Server.WriteTimeout

	// Request ID middleware (first, so all logs have request ID)
	e.Use(middleware.RequestID())
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.BodyLimit(strconv.FormatInt(deps.Config.App.MaxUploadSize+bodyLimitSlack, 10)))

	e.GET("/health", healthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	imageHandler := handler.NewImageHandler(deps.Images, deps.Config.App.MaxUploadSize)
	projectHandler := handler.NewProjectHandler(deps.Projects)
	userHandler := handler.NewUserHandler(deps.Users)
	authHandler := handler.NewAuthHandler(deps.Sessions, deps.Config.Server.CookieSecure)

	// Everything below resolves the principal first so rate limits key on it
	globalRateLimiter := middleware.NewGlobalRateLimiter()
	strictRateLimiter := middleware.NewStrictRateLimiter()
	loginRateLimiter := middleware.NewLoginRateLimiter()

	resolve := []echo.MiddlewareFunc{deps.AuthMiddleware.Resolve(), globalRateLimiter.Middleware()}

	e.GET("/images/:key", imageHandler.GetImage, resolve...)

	api := e.Group("/api", resolve...)
	api.GET("/images/:key", imageHandler.GetImage)
	api.PUT("/images/:key", imageHandler.UploadImage, deps.AuthMiddleware.RequireUser())

	api.GET("/projects", projectHandler.ListProjects)
	api.POST("/projects", projectHandler.SaveProject, deps.AuthMiddleware.RequireUser())
	api.GET("/project/:id", projectHandler.GetProject)
	api.DELETE("/project/:id", projectHandler.DeleteProject, deps.AuthMiddleware.RequireUser())

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)
	api.POST("/auth/session", authHandler.CreateSession, loginRateLimiter.Middleware(), deps.AuthMiddleware.RequireAdmin())

	admin := api.Group("/users", strictRateLimiter.Middleware(), deps.AuthMiddleware.RequireAdmin())
	admin.GET("", userHandler.ListUsers)
	admin.DELETE("/:id", userHandler.DeleteUser)
	admin.PATCH("/:id", userHandler.UpdateUser)

	if deps.Config.Server.EnableProfiling {
		profiling.Register(e.Group("/debug", append(resolve, deps.AuthMiddleware.RequireAdmin())...))
	}

	return &Server{
		echo: e,
		deps: deps,
	}
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() stdhttp.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func healthCheck(c echo.Context) error {
	return c.JSON(stdhttp.StatusOK, map[string]string{
		jsonKeyStatus: statusOK,
	})
}
