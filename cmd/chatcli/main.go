// Terminal chat client for the Agentforce proxy.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ashureev/agentbridge/internal/wsclient"
)

const replyTimeout = 30 * time.Second

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "proxy WebSocket URL")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan struct{}, 1)
	client := wsclient.New(*url, wsclient.Options{
		Logger: logger,
		OnMessage: func(text string) {
			fmt.Println(text)
		},
		OnState: func(state wsclient.ConnState) {
			fmt.Printf("[%s]\n", state)
			if state == wsclient.StateConnected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
	})

	runDone := make(chan error, 1)
	go func() {
		runDone <- client.Run(ctx)
	}()

	select {
	case <-connected:
	case err := <-runDone:
		fmt.Fprintln(os.Stderr, "connection failed:", err)
		os.Exit(1)
	}

	fmt.Println(`Type a message and press enter ("quit" to exit).`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" {
			break
		}

		reply, err := client.Ask(ctx, text, replyTimeout)
		if err != nil {
			if errors.Is(err, wsclient.ErrNotConnected) {
				fmt.Println("not connected; waiting for reconnect")
				continue
			}
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(reply)
	}

	cancel()
	<-runDone
}
