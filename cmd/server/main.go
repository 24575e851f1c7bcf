package main

import (
	"context"
	"easy-chat/infrastructure/api"
	"easy-chat/infrastructure/websocket"
	"easy-chat/internal"
	"easy-chat/moderation"
	"easy-chat/observability"
	"easy-chat/repositories"
	"easy-chat/runtime"
	"easy-chat/runtime/workers"
	"easy-chat/services"
	"easy-chat/sink"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, serves until a signal arrives and returns the exit code.
// Keeping os.Exit out of here lets every defer run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, _ := internal.CharacterRune(config.CharReplacement)

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitoring := observability.NewMonitoringManager(logger)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewHealthMonitoringWorker(logger, monitoring, config.MetricInterval))

	var options []runtime.Option
	options = append(options, runtime.WithMaxContentLength(config.MaxContentLength))

	// 3. Moderation (optional)
	if config.ModerationEnabled {
		data, err := runtime.NewCensoredLoader(os.DirFS(config.CensoredFilepath)).LoadAll(".")
		if err != nil {
			return exitConfig, fmt.Errorf("failed to load censored words: %w", err)
		}
		moderator, err := moderation.NewModerator(data.Words, charReplacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("failed to build moderator: %w", err)
		}
		logger.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
		options = append(options, runtime.WithCensor(moderator))
	}

	// 4. Archive (optional): BadgerDB + Bluge, fed behind the live log
	var repository repositories.IMessageRepository
	var archiveQueue workers.QueueGauge
	if config.ArchiveEnabled {
		db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
		if err != nil {
			return exitRuntime, fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}()

		blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
		}
		defer func() {
			logger.Info("Closing Bluge...")
			_ = blugeWriter.Close()
		}()

		messageRepository := repositories.NewMessageRepository(db, blugeWriter, logger, config.ArchivePageSize)
		repository = messageRepository
		fanout := workers.NewEventFanout(logger, config.ArchiveBufferSize, monitoring, config.SinkTimeout,
			sink.NewDiskSink(messageRepository, logger))
		sup.Add(fanout)
		archiveQueue = fanout
		options = append(options, runtime.WithPublisher(fanout))

		if logger.Enabled(ctx, slog.LevelDebug) {
			endpoint := "/inspect"
			debugServer := internal.StartDebugServer(logger, db, config.DebugPort, endpoint, ArchiveMapper,
				func() map[string]any { return statsMap(monitoring) })
			logger.Info("Debug archive inspector available",
				"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
			defer func() { _ = debugServer.Close() }()
		}
	}

	// 5. Registry, broadcast engine & service
	registry := runtime.NewRegistry(logger, config.HistoryLimit, options...)
	broadcaster := runtime.NewBroadcaster(logger, registry, monitoring, config.SendTimeout)
	chatService := services.NewChatService(logger, registry, broadcaster, repository, monitoring,
		config.BackfillSize, config.MaxContentLength)

	// 6. Background workers
	sup.Add(workers.NewReporterWorker(logger, registry, monitoring, archiveQueue, config.ReportInterval))
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		logger.Info("Starting supervisor...")
		sup.Run(ctx)
	}()

	// 7. HTTP & WebSocket server
	socket := websocket.NewHandler(logger, chatService, config.Origins(), config.ReadLimit)
	server := &http.Server{
		Addr:              config.Address(),
		Handler:           api.NewRouter(logger, chatService, monitoring, socket),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting chat server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	exitCode, exitErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		exitCode, exitErr = exitRuntime, err
	}

	// 9. Graceful shutdown: open sockets observe ctx and close with 1001
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	stop()
	sup.Stop()
	<-supDone

	logger.Info("Program stopped cleanly")
	return exitCode, exitErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath).
		WithLogger(repositories.NewBadgerLogger(logger))
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}

// ArchiveMapper renders archived chat events in the debug inspector.
func ArchiveMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)
	var message repositories.ArchivedMessage
	if err := json.Unmarshal(val, &message); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = string(message.Kind)
	row.Author = message.Username
	row.Detail = message.Content
	if message.Lang != "" {
		row.Type = fmt.Sprintf("%s (%s)", message.Kind, message.Lang)
	}
	return row
}

func statsMap(monitoring *observability.MonitoringManager) map[string]any {
	latest := monitoring.GetLatest()
	return map[string]any{
		"Messages":       latest.Messages,
		"Joins":          latest.Joins,
		"ArchiveDropped": latest.ArchiveDropped,
		"Goroutines":     latest.Process.Goroutines,
	}
}
