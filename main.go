package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidfinity/api"
)

func main() {
	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: args.Level()})))

	if args.Mode == modeSweep {
		args.ServerConfig.Sweeper.Interval = 0
	}
	server, err := api.NewServer(args.ServerConfig)
	if err != nil {
		panic(err)
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.Start()
	if args.Mode == modeSweep {
		// 單次結算，供外部排程使用
		report, err := server.RunSweep(ctx)
		if err != nil {
			slog.Error("Fail to sweep auctions", slog.Any("error", err))
			return
		}
		slog.Info("Sweep completed", slog.Int("sold", report.Sold), slog.Int("ended", report.Ended), slog.Int("failed", report.Failed))
		return
	}

	httpServer := &http.Server{
		Addr:    args.ServerURL,
		Handler: server.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Fail to shutdown http server", slog.Any("error", err))
		}
	}()

	slog.Info("Start http server", slog.String("addr", args.ServerURL))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Http server stopped", slog.Any("error", err))
	}
}
