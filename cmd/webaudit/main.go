// Command webaudit runs the scan API (serve) or submits a scan and follows
// its results in the terminal (watch).
//
// Usage:
//
//	webaudit serve [-addr :8080] [-plan functional|security|full]
//	webaudit watch -target URL [-server http://localhost:8080] [-interval 1s]
//	               [-steps 7] [-chart scan_chart.png] [-max-wait 0]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/raysh454/webaudit/internal/app"
	"github.com/raysh454/webaudit/internal/cli"
	"github.com/raysh454/webaudit/internal/logging"
	"github.com/raysh454/webaudit/internal/render"
	"github.com/raysh454/webaudit/internal/server"
	"github.com/raysh454/webaudit/internal/watch"
	"github.com/raysh454/webaudit/internal/webclient"
)

func main() {
	// Local overrides first; godotenv never replaces variables already set.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := app.DefaultConfig()
	app.LoadFromEnv(cfg)
	args.Apply(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args.Command {
	case cli.CommandServe:
		err = serve(ctx, cfg)
	case cli.CommandWatch:
		err = watchScan(ctx, cfg, args.Target)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config) error {
	logger := logging.NewLogger("webaudit", os.Stdout, logging.ParseLevel(cfg.LogLevel))

	a, err := app.NewApplication(cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr:     cfg.Addr,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	}, a)
	if err != nil {
		return err
	}
	httpSrv := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: cfg.Addr})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", logging.Field{Key: "error", Value: serr.Error()})
	}
	if serr := a.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("application shutdown", logging.Field{Key: "error", Value: serr.Error()})
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func watchScan(ctx context.Context, cfg *app.Config, target string) error {
	// stdout carries the dashboard.
	logger := logging.NewLogger("watch", os.Stderr, logging.ParseLevel(cfg.LogLevel))

	wcCfg := cfg.WebClientCfg
	wcCfg.Client = webclient.ClientNetHTTP
	wc, err := webclient.NewWebClient(wcCfg, logger)
	if err != nil {
		return err
	}
	defer wc.Close()

	var canvas render.Canvas = render.DiscardCanvas{}
	if cfg.Watch.ChartPath != "" {
		canvas = render.NewFileCanvas(cfg.Watch.ChartPath)
	}
	dash := render.NewDashboard(canvas, os.Stdout)
	dash.Clear = true

	ctrl := watch.NewController(watch.Config{
		Interval:   cfg.Watch.Interval,
		TotalSteps: cfg.Watch.TotalSteps,
		MaxWait:    cfg.Watch.MaxWait,
	}, watch.NewHTTPTransport(cfg.Watch.ServerURL, wc), dash, nil, logger)

	task, err := ctrl.StartScan(ctx, target)
	if err != nil {
		return err
	}
	if err := task.Wait(context.Background()); err != nil {
		return err
	}
	if cfg.Watch.ChartPath != "" {
		fmt.Fprintf(os.Stdout, "chart written to %s\n", cfg.Watch.ChartPath)
	}
	return nil
}
