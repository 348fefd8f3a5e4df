// Package httpapi exposes the operator-facing status endpoints and wires
// the Event Channel's websocket route onto one Echo application. Serving
// the HLS output itself is out of scope; this surface only reports on it.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"classroom-stream/origin/internal/domain"
	"classroom-stream/origin/internal/orchestrator"
	"classroom-stream/origin/internal/room"
	"classroom-stream/origin/internal/store"
	"classroom-stream/origin/internal/transport/ws"
)

// Server is the Echo application.
type Server struct {
	echo *echo.Echo
	orch *orchestrator.Orchestrator
	rooms *room.Registry
	store *store.Store
}

// New constructs an Echo app with the status + websocket routes.
func New(orch *orchestrator.Orchestrator, rooms *room.Registry, st *store.Store, idleTimeout time.Duration) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, orch: orch, rooms: rooms, store: st}
	s.registerRoutes(idleTimeout)
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			path := req.URL.Path
			if path == "/health" {
				slog.Debug("http request", "method", req.Method, "path", path, "status", c.Response().Status, "duration_ms", time.Since(start).Milliseconds())
			} else {
				slog.Info("http request", "method", req.Method, "path", path, "status", c.Response().Status, "duration_ms", time.Since(start).Milliseconds(), "remote", c.RealIP())
			}
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes(idleTimeout time.Duration) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/streams", s.handleStreams)
	s.echo.GET("/api/rooms/:streamKey", s.handleRoom)
	s.echo.GET("/api/recordings", s.handleRecordings)
	ws.NewHandler(s.rooms, idleTimeout).Register(s.echo)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("http server stopped")
		return nil
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	ActiveStreams int   `json:"active_streams"`
	ActiveRooms  int    `json:"active_rooms"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:        "ok",
		ActiveStreams: len(s.orch.Snapshot()),
		ActiveRooms:   s.rooms.Count(),
	})
}

func (s *Server) handleStreams(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Snapshot())
}

type roomSummary struct {
	StreamKey    domain.StreamKey     `json:"stream_key"`
	Participants []domain.Participant `json:"participants"`
}

func (s *Server) handleRoom(c echo.Context) error {
	key := domain.StreamKey(c.Param("streamKey"))
	hub, ok := s.rooms.Get(key)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no active room for this stream key")
	}
	return c.JSON(http.StatusOK, roomSummary{StreamKey: key, Participants: hub.Participants()})
}

func (s *Server) handleRecordings(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "recordings index is not configured")
	}
	entries, err := s.store.ListRecordings(c.Request().Context())
	if err != nil {
		slog.Error("list recordings", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list recordings")
	}
	return c.JSON(http.StatusOK, entries)
}
