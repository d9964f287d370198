package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/loykin/slumber/internal/config"
	itls "github.com/loykin/slumber/internal/tls"
)

// NewServer binds cfg.Listen and serves h in the background, over TLS when
// configured. With the echo frontend the gin handler is mounted under the
// base path through echo.WrapHandler. The returned server's Addr is the
// bound address.
func NewServer(cfg config.ServerConfig, h http.Handler, logger *slog.Logger) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tlsCfg, err := itls.SetupTLS(cfg)
	if err != nil {
		return nil, err
	}

	handler := h
	if strings.EqualFold(cfg.Frontend, "echo") {
		handler = echoFrontend(sanitizeBase(cfg.BasePath), h)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: /state/stream stays open
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		var err error
		if tlsCfg != nil {
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server stopped", "error", err)
		}
	}()
	logger.Info("api server listening", "addr", server.Addr, "tls", tlsCfg != nil, "frontend", frontendName(cfg.Frontend))
	return server, nil
}

func echoFrontend(base string, h http.Handler) http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	wrapped := echo.WrapHandler(h)
	if base == "" {
		e.Any("/*", wrapped)
		return e
	}
	e.Any(base, wrapped)
	e.Any(base+"/*", wrapped)
	return e
}

func frontendName(f string) string {
	if f == "" {
		return "gin"
	}
	return strings.ToLower(f)
}
