package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 5 * time.Second

func runServe(ctx context.Context, e *env) error {
	addr, _ := e.flags.GetString("addr")
	if addr == "" {
		addr = e.app.Config.ConsoleAddr
	}

	router := e.app.Router(prometheus.DefaultRegisterer)
	errCh := make(chan error, 1)
	go func() {
		e.log.Info().Str("addr", addr).Str("api", e.app.Config.APIBaseURL).Msg("console listening")
		if err := router.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	e.log.Info().Msg("shutting down console")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return router.Shutdown(shutdownCtx)
}
