package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/BetaCatPro/ordertrack-ws/internal/metrics"
	"github.com/BetaCatPro/ordertrack-ws/pkg/server"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	root := &cobra.Command{
		Use:          "ordertrack-server",
		Short:        "Local order-tracking websocket server for exercising the ordertrack client",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().String("addr", ":8080", "Listen address")
	root.Flags().String("log-level", "info", "Log level (debug|info|warn|error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	rawLevel, _ := cmd.Flags().GetString("log-level")

	level, err := zerolog.ParseLevel(strings.ToLower(rawLevel))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	wsServer := server.NewServer(addr, metrics.New())

	errCh := make(chan error, 1)
	go func() {
		if err := wsServer.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return wsServer.Stop(shutdownCtx)
}
