package mcp

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RunHTTP serves MCP over streamable HTTP on ln until ctx is done. The MCP
// endpoint is mounted at /mcp; /ping answers health checks.
func (s *Server) RunHTTP(ctx context.Context, ln net.Listener) error {
	e := echo.New()
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())

	e.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	e.Any("/mcp", echo.WrapHandler(handler))

	slog.Info("Starting MCP server with streamable HTTP transport", "addr", ln.Addr().String())

	httpServer := &http.Server{
		Handler: e,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
