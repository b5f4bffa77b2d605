package http

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/go-arcade/cadflight/pkg/log"
)

// Http holds the HTTP server configuration shared by the gateway.
type Http struct {
	Host                string
	Port                int
	ExternalContextPath string
	PProf               bool
	ExposeMetrics       bool
	AccessLog           bool
	ReadTimeout         int
	WriteTimeout        int
	IdleTimeout         int
	ShutdownTimeout     int
	TLS                 TLS
}

type TLS struct {
	CertFile string
	KeyFile  string
}

// NewHttp starts the Fiber app in the background and returns a shutdown
// hook that blocks on an OS signal and then drains the server.
//
// cfg's ReadTimeout, WriteTimeout and IdleTimeout are not applied here; the
// server uses whatever timeouts app's own fiber.Config carries.
func NewHttp(cfg Http, app *fiber.App) func() {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	go func() {
		log.Infow("http server starting", "addr", addr)
		var err error
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
			err = app.ListenTLS(addr, cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = app.Listen(addr)
		}
		if err != nil {
			log.Errorw("http server stopped", "error", err)
			os.Exit(1)
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	return createShutdownHook(app, cfg.ShutdownTimeout, sc)
}

func createShutdownHook(app *fiber.App, shutdownTimeout int, signalChan chan os.Signal) func() {
	return func() {
		<-signalChan
		log.Info("http server shutting down...")

		timeout := time.Duration(shutdownTimeout) * time.Second
		done := make(chan error, 1)
		go func() { done <- app.Shutdown() }()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		select {
		case err := <-done:
			if err != nil {
				log.Errorw("server shutdown error", "error", err)
			} else {
				log.Info("http server shut down gracefully")
			}
		case <-ctx.Done():
			log.Warnw("server shutdown timed out", "timeout", timeout)
		}
	}
}
