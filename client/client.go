package main

import (
	"bufio"
	"chat-relay/runtime"
	"chat-relay/transport"
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:8080"`
	LogLevel      string `env:"LOG_LEVEL,default=WARN"`
	Colours       bool   `env:"CHAT_COLOURS,default=true"`
}

var (
	joinedStyle = color.New(color.FgGreen)
	leftStyle   = color.New(color.FgRed)
	promptStyle = color.New(color.FgCyan, color.OpBold)
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run dials the relay, prints every incoming line and forwards stdin line by line.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("tcp", config.ServerAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	lines := transport.NewLineConn(conn, transport.DefaultMaxLineLength)
	defer func() {
		log.Info("Closing connection...")
		_ = lines.Close()
	}()
	log.Info("Connected", "address", config.ServerAddress)

	// stdin -> server
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := lines.WriteLine(scanner.Text()); err != nil {
				log.Warn("Failed to send line", "error", err)
				break
			}
		}
		// End of input: leave the chat
		_ = lines.Close()
	}()

	// server -> stdout
	received := make(chan error, 1)
	go func() {
		for {
			line, err := lines.ReadLine()
			if err != nil {
				received <- err
				return
			}
			fmt.Fprintln(os.Stdout, colourise(line, config.Colours))
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Stopping client...")
		return exitOK, nil
	case err := <-received:
		if goerrors.Is(err, io.EOF) || goerrors.Is(err, net.ErrClosed) {
			return exitOK, nil
		}
		return exitRuntime, fmt.Errorf("connection lost: %w", err)
	}
}

// colourise highlights the lines produced by the relay itself.
func colourise(line string, enabled bool) string {
	if !enabled {
		return line
	}
	switch {
	case strings.HasSuffix(line, " joined the chat"):
		return joinedStyle.Render(line)
	case strings.HasSuffix(line, " left the chat, :("):
		return leftStyle.Render(line)
	case line == runtime.UsernamePrompt:
		return promptStyle.Render(line)
	default:
		return line
	}
}
