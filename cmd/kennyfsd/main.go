// Command kennyfsd is the KennyFS network-protocol server: it loads a
// configuration file, opens a local POSIX backend rooted at the configured
// directory, and runs the single-threaded event loop until terminated.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hraban/kennyfs/internal/backend/posix"
	"github.com/hraban/kennyfs/internal/logger"
	"github.com/hraban/kennyfs/internal/server"
	"github.com/hraban/kennyfs/pkg/config"
	"github.com/hraban/kennyfs/pkg/metrics"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "kennyfsd <config-file> <listen-port>",
	Short: "KennyFS network-protocol server",
	Long: `kennyfsd serves the KennyFS wire protocol: a length-prefixed,
big-endian request/response protocol multiplexed over one TCP socket per
client by a single-threaded, non-blocking event loop.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kennyfsd %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kennyfsd: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	listenPort, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("listen port %q is not a decimal number", args[1])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Server.ListenPort = listenPort

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stdout",
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	idleTimeout, err := parseIdleTimeout(cfg.Server.IdleTimeout)
	if err != nil {
		return fmt.Errorf("server.idle_timeout: %w", err)
	}

	if _, err := os.Stat(cfg.Backend.Root); err != nil {
		return fmt.Errorf("backend.root %q: %w", cfg.Backend.Root, err)
	}
	be := posix.New(cfg.Backend.Root)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		go serveMetrics(cfg.Metrics.Port, reg)
	}

	srv := server.New(server.Config{
		ListenPort:  listenPort,
		RingBufCap:  int(cfg.Ring.BufCap),
		SOP:         cfg.SOP,
		IdleTimeout: idleTimeout,
	}, be, m)

	logger.Info("starting kennyfsd", "server", srv.String(), "backend_root", cfg.Backend.Root)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		os.Exit(0)
	}()

	if err := srv.Run(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func serveMetrics(port int, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", logger.Err(err))
	}
}

func parseIdleTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
