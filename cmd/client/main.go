package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/BetaCatPro/ordertrack-ws/internal/config"
	"github.com/BetaCatPro/ordertrack-ws/internal/metrics"
	"github.com/BetaCatPro/ordertrack-ws/pkg/client"
	"github.com/BetaCatPro/ordertrack-ws/pkg/types"
)

const appName = "ordertrack"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Watch an order-tracking websocket and log every message",
		Long: `Opens one websocket to <base-url><order-id>/, sends {"test": "Hello server!"},
logs every inbound message and reconnects at a fixed interval after an unexpected close.
Ctrl-C closes the socket without reconnecting.`,
		SilenceUsage: true,
		RunE:         runWatch,
	}

	root.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setLogLevel(cmd.Flags())
	}

	flags := root.Flags()
	flags.String("config", "", "Optional YAML config file")
	flags.String("base-url", "", "Order websocket base url (default wss://bistropulse-backend.onrender.com/ws/orders/)")
	flags.String("order-id", "", "Order ID to track (default BO4014714)")
	flags.Duration("reconnect-interval", 0, "Fixed delay before reconnecting (default 5s)")
	flags.String("codec", "", "Payload codec (json|protobuf)")
	flags.String("compression", "", "Payload compression (none|gzip|snappy)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(newPushCmd())
	return root
}

func setLogLevel(flags *pflag.FlagSet) error {
	raw, err := flags.GetString("log-level")
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.LoadAndValidate(path, flagOverrides(flags))
	if err != nil {
		return err
	}

	m := metrics.New()
	if addr, _ := flags.GetString("metrics-addr"); addr != "" {
		go serveMetrics(addr, m)
	}

	wsClient, err := client.NewClient(cfg, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("order_id", cfg.OrderID).Str("url", wsClient.GetConnectionInfo().URL).Msg("watching order")
	if err := wsClient.Run(ctx); err != nil {
		return err
	}

	stats := wsClient.GetStats()
	log.Info().
		Int64("connects", stats.Connects).
		Int64("received", stats.ReceivedMessages).
		Int64("sent", stats.SentMessages).
		Int64("dropped", stats.DroppedMessages).
		Int64("reconnects", stats.ReconnectAttempts).
		Msg("closed")
	return nil
}

// flagOverrides 命令行参数覆盖配置文件
func flagOverrides(flags *pflag.FlagSet) func(*types.Config) {
	return func(cfg *types.Config) {
		if v, _ := flags.GetString("base-url"); v != "" {
			cfg.BaseURL = v
		}
		if v, _ := flags.GetString("order-id"); v != "" {
			cfg.OrderID = v
		}
		if v, _ := flags.GetDuration("reconnect-interval"); v != 0 {
			cfg.ReconnectInterval = v
		}
		if v, _ := flags.GetString("codec"); v != "" {
			cfg.Codec = v
		}
		if v, _ := flags.GetString("compression"); v != "" {
			cfg.Compression = v
		}
	}
}

func serveMetrics(addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push an order update through a local ordertrack-server",
		Args:  cobra.NoArgs,
		RunE:  runPush,
	}
	cmd.Flags().String("server", "http://localhost:8080", "ordertrack-server base url")
	cmd.Flags().String("order-id", "BO2453938", "Order ID whose group receives the update")
	cmd.Flags().String("data", `{"event":"manual_test","message":"Hello from Render service"}`, "JSON payload")
	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	orderID, _ := cmd.Flags().GetString("order-id")
	data, _ := cmd.Flags().GetString("data")

	if !json.Valid([]byte(data)) {
		return fmt.Errorf("--data is not valid JSON")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	url := strings.TrimSuffix(server, "/") + "/orders/" + orderID + "/updates"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("push update: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push update: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	log.Info().Str("order_id", orderID).RawJSON("result", bytes.TrimSpace(body)).Msg("sent update")
	return nil
}
