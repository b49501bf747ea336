package main

import (
	"bufio"
	"context"
	"fmt"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/infrastructure/grpc/chatapi"
	"live-chat/session"
	"live-chat/transport/remote"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

type Config struct {
	ServerAddr string        `envconfig:"SERVER_ADDR" default:"localhost:50051"`
	ChannelID  string        `envconfig:"CHANNEL_ID" required:"true"`
	Token      string        `envconfig:"IDENTITY_TOKEN" required:"true"`
	LogLevel   string        `envconfig:"LOG_LEVEL" default:"WARN"`
	Timeout    time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`
	// CLIENT_COLOURS enables colorized output
	Colours bool `envconfig:"CLIENT_COLOURS" default:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Client terminated with error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours
	log := logs.GetLoggerFromString(config.LogLevel)

	conn, err := remote.NewClientConn(config.ServerAddr)
	if err != nil {
		return fmt.Errorf("failed to create client for %s: %w", config.ServerAddr, err)
	}
	defer func() { _ = conn.Close() }()

	printer := newPrinter()
	controller, err := session.New(
		session.WithLogger(log),
		session.WithOnChange(printer.render),
		session.WithTransportFactory(func() contract.Transport {
			return remote.NewTransport(log, chatapi.NewChatServiceClient(conn))
		}),
	)
	if err != nil {
		return err
	}
	defer controller.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := session.Params{ChannelID: domain.ChannelID(config.ChannelID), IdentityToken: config.Token, Enabled: true}
	if err := withTimeout(ctx, config.Timeout, func(ctx context.Context) error {
		return controller.Update(ctx, params)
	}); err != nil {
		return err
	}
	color.Info.Printf("Joined %s. Type a message, /reconnect or /quit.\n", config.ChannelID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch text := strings.TrimSpace(line); text {
			case "":
			case "/quit":
				return nil
			case "/reconnect":
				err := withTimeout(ctx, config.Timeout, controller.Reconnect)
				if err != nil {
					color.Error.Println(err)
				}
			default:
				err := withTimeout(ctx, config.Timeout, func(ctx context.Context) error {
					_, err := controller.SendMessage(ctx, text)
					return err
				})
				if err != nil {
					color.Error.Println(err)
				}
			}
		}
	}
}

func withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// printer writes each message once, oldest first, and every connection state change.
type printer struct {
	mu    sync.Mutex
	seen  map[string]bool
	state domain.ConnectionState
}

func newPrinter() *printer {
	return &printer{seen: make(map[string]bool)}
}

func (p *printer) render(view session.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if view.State != p.state {
		p.state = view.State
		switch view.State {
		case domain.StateConnected:
			color.Success.Println("● connected")
		case domain.StateError:
			color.Error.Printf("● %s: %v\n", view.State, view.Err)
		default:
			color.Comment.Printf("● %s\n", view.State)
		}
	}

	for i := len(view.Messages) - 1; i >= 0; i-- {
		message := view.Messages[i]
		if p.seen[message.ID] {
			continue
		}
		p.seen[message.ID] = true
		fmt.Printf("%s %s %s\n",
			color.Gray.Sprint(message.CreatedAt.Local().Format("15:04:05")),
			color.Cyan.Sprintf("%s:", message.DisplayName),
			message.Text)
	}
}
