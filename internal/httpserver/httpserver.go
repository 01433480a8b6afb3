// Package httpserver runs an http.Server until its context ends, then
// shuts it down gracefully.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/noteboard/internal/obs"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// New returns a server with header and idle timeouts set. There is no
// write timeout: injected delays may legitimately hold a response open.
func New(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// ListenAndServe listens on addr and calls Serve.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, New(handler), shutdownTimeout)
}

// Serve runs srv on ln. When ctx is done the server stops accepting
// connections, cancels the context of every in-flight request and gives
// them shutdownTimeout to finish. Handlers that wait on their context
// (injected delays, upstream calls) return promptly; the rest drain. A
// serve failure also triggers shutdown and is returned.
func Serve(ctx context.Context, ln net.Listener, srv *http.Server, shutdownTimeout time.Duration) error {
	logger := obs.Pkg("httpserver")
	g, gctx := errgroup.WithContext(ctx)

	requestCtx, cancelRequests := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRequests()
	if srv.BaseContext == nil {
		srv.BaseContext = func(net.Listener) context.Context { return requestCtx }
	}

	g.Go(func() error {
		logger.Info("server_listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server_shutting_down", "timeout", shutdownTimeout.String())
		cancelRequests()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
