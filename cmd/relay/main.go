package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/dispatcher"
	"chat-relay/grpc/server"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	transport "chat-relay/transport/websocket"
	"context"
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
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until a signal arrives, then shuts down in order:
// listeners first, then the sockets, then the relay loop and its workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Optional features
	var options []runtime.RouterOption
	var backgroundWorkers []contract.Worker

	if config.BadgerFilepath != "" {
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return fmt.Errorf("database opening failed: %w", err)
		}
		//  Defer will be executed before run() returned anything to main()
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		diskSink := sink.NewDiskSink(repositories.NewMessageRepository(db, log, nil), log, config.SinkBufferSize)
		options = append(options, runtime.WithSink(diskSink))
		backgroundWorkers = append(backgroundWorkers, diskSink)
	}

	if config.EnableModeration {
		moderator, err := newModerator(config, log)
		if err != nil {
			return err
		}
		options = append(options, runtime.WithReviewer(moderator))
	}

	var verifier *auth.TokenVerifier
	if config.AuthSecret != "" {
		verifier = auth.NewTokenVerifier(config.AuthSecret)
	}

	// 3. Relay
	sup := workers.NewSupervisor(log, config.RestartInterval)
	d := dispatcher.New(log, config.BufferSize)
	relay := runtime.NewRelay(log, d, sup, config.MaxTrackedMessages, options...)
	relay.Add(workers.NewHeartbeatWorker(log, relay, config.HeartbeatInterval))
	relay.Add(backgroundWorkers...)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Start(ctx)
	}()

	// 5. WebSocket transport
	wsServer := transport.NewServer(log, d, auth.NewResolver(verifier), transport.Options{
		MaxMessageSize: config.MaxMessageSize,
		PongTimeout:    config.PongTimeout,
		WriteTimeout:   config.WriteTimeout,
		OutboxSize:     config.ConnectionBufferSize,
		AllowedOrigins: config.Origins(),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           wsServer,
		ReadHeaderTimeout: config.WriteTimeout,
	}

	// 6. gRPC admin server
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(auth.AuthInterceptor(verifier)))
	server.RegisterPresenceServiceServer(s, server.NewPresenceServer(relay))

	// Use an error channel to capture Serve() issues
	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting WebSocket server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()
	go func() {
		log.Info("Starting gRPC server", "address", grpcAddress, "at", time.Now().UTC())
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Server failed, shutting down", "error", runErr)
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	wsServer.Close()
	s.GracefulStop()
	relay.Stop()
	<-relayDone
	log.Info("Program stopped cleanly")

	return runErr
}

func newModerator(config internal.Config, log *slog.Logger) (*moderation.Moderator, error) {
	censored, err := moderation.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("censored words: %w", err)
	}
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	log.Info("Moderation enabled", "languages", censored.Languages, "words", len(censored.Words))
	return moderation.NewModerator(censored.Words, replacement, log)
}
