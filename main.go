package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func run(ctx context.Context, cfg config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := newServer(cfg.Title, log, func() View {
		return NewCounterView(0)
	})
	server := &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.routes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("running")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "failed to serve")
	case <-ctx.Done():
	}

	log.Info().Int("sessions", s.sessions.Len()).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down")
	}
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "imcounter:", err)
		os.Exit(1)
	}
}
