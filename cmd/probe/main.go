// Command probe connects to a running relay as one participant, optionally sends a
// message, and prints every event it receives. With ADMIN_ADDR set it also prints
// the relay counters from the admin service.
package main

import (
	"chat-relay/dispatcher"
	"chat-relay/grpc/client"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

type Config struct {
	RelayAddr string        `envconfig:"RELAY_ADDR" default:"localhost:5000"`
	AdminAddr string        `envconfig:"ADMIN_ADDR"`
	Token     string        `envconfig:"PROBE_TOKEN"`
	Listen    time.Duration `envconfig:"PROBE_LISTEN" default:"5s"`
}

func main() {
	if err := run(); err != nil {
		color.Error.Println("Fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	participantID := flag.String("id", "", "participant id, empty for an anonymous socket")
	displayName := flag.String("name", "", "display name")
	room := flag.String("room", "global", "room to join")
	text := flag.String("say", "", "message to send once joined")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.AdminAddr != "" {
		if err := printStats(ctx, config); err != nil {
			return err
		}
	}

	query := url.Values{}
	switch {
	case config.Token != "":
		query.Set("token", config.Token)
	case *participantID != "":
		query.Set("participantId", *participantID)
		query.Set("displayName", *displayName)
	}
	target := url.URL{Scheme: "ws", Host: config.RelayAddr, Path: "/ws", RawQuery: query.Encode()}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target.String(), err)
	}
	defer conn.Close()
	color.Info.Println("Connected to", target.String())

	if err := conn.WriteJSON(map[string]any{"event": "joinRoom", "data": map[string]string{"roomName": *room}}); err != nil {
		return err
	}
	if *text != "" {
		if err := conn.WriteJSON(map[string]any{"event": "sendMessage", "data": map[string]string{"text": *text, "room": *room}}); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(config.Listen)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return err
		}
		var frame dispatcher.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil || time.Now().After(deadline) {
				color.Comment.Println("Done listening")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		color.New(color.FgCyan, color.OpBold).Print(frame.Event)
		fmt.Println(" " + string(frame.Data))
	}
}

func printStats(ctx context.Context, config Config) error {
	conn, err := grpc.NewClient(config.AdminAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("admin client: %w", err)
	}
	defer conn.Close()

	if config.Token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+config.Token)
	}
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stats, err := client.NewPresenceClient(conn).Stats(callCtx)
	if err != nil {
		return fmt.Errorf("admin stats: %w", err)
	}
	pretty, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	color.Info.Println("Relay stats")
	fmt.Println(string(pretty))
	return nil
}
