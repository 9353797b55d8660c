// wsprobe connects to a websocket endpoint and prints what it receives.
// Usage: go run ./cmd/wsprobe --config configs/wsprobe.example.yaml
//
// Lines read from stdin (with -stdin) are sent as text messages. Events can be journaled
// to PostgreSQL by enabling the journal section of the config.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rickgao/wsbridge/internal/config"
	"github.com/rickgao/wsbridge/internal/connection"
	"github.com/rickgao/wsbridge/internal/database"
	"github.com/rickgao/wsbridge/internal/journal"
	"github.com/rickgao/wsbridge/internal/transport"
	_ "github.com/rickgao/wsbridge/internal/transport/gorilla"
	_ "github.com/rickgao/wsbridge/internal/transport/nhooyr"
	"github.com/rickgao/wsbridge/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/wsprobe.example.yaml", "path to config file")
	send := flag.String("send", "", "text message to send once the connection opens")
	fromStdin := flag.Bool("stdin", false, "send each line read from stdin as a text message")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging. Received messages go to stdout, logs to stderr.
	logger := newLogger(cfg.Log, os.Stderr)
	logger.Info("starting wsprobe",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"url", cfg.Endpoint.URL,
		"driver", cfg.Endpoint.Driver,
	)

	factory, err := transport.Lookup(cfg.Endpoint.Driver)
	if err != nil {
		logger.Error("failed to select transport", "error", err, "available", transport.Drivers())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional event journal
	var attach func(*connection.Connection)
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to create journal schema", "error", err)
			os.Exit(1)
		}

		writer = journal.NewWriter(writerConfig(cfg), pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start journal writer", "error", err)
			os.Exit(1)
		}
		recorder := journal.NewRecorder(writer)
		attach = func(c *connection.Connection) { recorder.Attach(c) }
	}

	ep, start, err := newEndpoint(cfg, factory, attach, logger)
	if err != nil {
		logger.Error("failed to create connection", "error", err)
		os.Exit(1)
	}

	// closed receives once the session is over: the connection closed without reconnect,
	// a requested close completed, or reconnecting gave up.
	closed := make(chan connection.CloseInfo, 1)
	var stopping atomic.Bool
	notifyClosed := func(info connection.CloseInfo) {
		select {
		case closed <- info:
		default:
		}
	}

	ep.OnOpened(func() {
		logger.Info("connected")
		if *send != "" {
			ep.Send(*send)
		}
	})
	ep.OnMessage(func(message string) {
		fmt.Println(message)
	})
	ep.OnData(func(data []byte) {
		logger.Info("binary message", "bytes", len(data))
	})
	ep.OnError(func(err error) {
		logger.Warn("connection error", "error", err)
		if errors.Is(err, connection.ErrReconnectExhausted) {
			notifyClosed(connection.CloseInfo{})
		}
	})
	ep.OnClosed(func(info connection.CloseInfo) {
		logger.Info("disconnected", "code", info.Code, "reason", info.Reason)
		if !cfg.Reconnect.Enabled || stopping.Load() {
			notifyClosed(info)
		}
	})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	start()

	if *fromStdin {
		go forwardStdin(ep, &stopping, logger)
	}

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		stopping.Store(true)
		ep.CloseWithStatus(connection.StatusNormalClosure, "interrupt")

		// Wait for the close handshake, but not forever.
		select {
		case <-closed:
		case <-sigCh:
			logger.Warn("second signal, not waiting for close")
		case <-time.After(transport.CloseDeadline + time.Second):
			logger.Warn("close did not complete in time")
		}
	case <-closed:
	}

	ep.Dispose()

	if writer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		writer.Stop(shutdownCtx)
		stats := writer.Stats()
		logger.Info("journal flushed",
			"inserts", stats.Inserts,
			"errors", stats.Errors,
			"dropped", stats.Dropped,
		)
	}

	logger.Info("wsprobe stopped")
}

// forwardStdin sends each stdin line as a text message and closes normally at EOF.
func forwardStdin(ep endpoint, stopping *atomic.Bool, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		ep.Send(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("stdin read failed", "error", err)
	}
	logger.Info("stdin closed")
	stopping.Store(true)
	ep.CloseWithStatus(connection.StatusNormalClosure, "stdin closed")
}
