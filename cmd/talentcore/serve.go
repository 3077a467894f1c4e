package main

import (
	"context"
	"errors"
	"expvar"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"talentcore/internal/adapters/httpapi"
	"talentcore/internal/notify/wshub"
)

func newServeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lifecycle HTTP API and event stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	_ = c.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (c *cli) serve(ctx context.Context, traceOut io.Writer) error {
	rt, err := openRuntime(ctx, c.cfg, c.log, traceOut)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			c.log.Warn("closing runtime", zap.Error(err))
		}
	}()

	if !c.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	apiOpts := []httpapi.Option{
		httpapi.WithLogger(c.log),
		httpapi.WithAllowedOrigins(c.cfg.HTTP.AllowedOrigins...),
		httpapi.WithEventStream(wshub.New(rt.bus, c.log, c.cfg.HTTP.AllowedOrigins...)),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})),
	}
	if rt.expvar != nil {
		apiOpts = append(apiOpts, httpapi.WithDebugVars(expvar.Handler()))
	}
	api := httpapi.New(rt.svc, apiOpts...)
	server := &http.Server{
		Addr:              c.cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rt.relay != nil {
		g.Go(func() error {
			return rt.relay.Relay(gctx, rt.bus, c.log)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), c.cfg.HTTP.ShutdownGrace)
		defer cancel()
		c.log.Info("shutting down http server")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
