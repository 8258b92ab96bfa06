package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/swear-shop/supportchat/internal/chat"
	"github.com/swear-shop/supportchat/internal/chatapi"
	"github.com/swear-shop/supportchat/internal/metrics"
	"github.com/swear-shop/supportchat/internal/ratelimit"
	"github.com/swear-shop/supportchat/internal/transport"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	apiBaseURL := "http://localhost:8080/api"
	if v := os.Getenv("API_BASE_URL"); v != "" {
		apiBaseURL = v
	}
	wsURL := "ws://localhost:8080/chat/ws"
	if v := os.Getenv("WS_URL"); v != "" {
		wsURL = v
	}
	token := os.Getenv("AUTH_TOKEN")
	if token == "" {
		log.Fatal("AUTH_TOKEN is required")
	}
	metricsAddr := os.Getenv("METRICS_ADDR") // empty disables the endpoint

	apiConfig := chatapi.Config{BaseURL: apiBaseURL}
	if v := os.Getenv("API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			apiConfig.Timeout = d
		}
	}

	wsConfig := transport.DefaultConfig(wsURL)
	if v := os.Getenv("PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			wsConfig.PingInterval = d
		}
	}

	log.Printf("support chat client starting")
	log.Printf("  api_base_url:  %s", apiBaseURL)
	log.Printf("  ws_url:        %s", wsURL)
	log.Printf("  ping_interval: %s", wsConfig.PingInterval)
	if metricsAddr != "" {
		log.Printf("  metrics_addr:  %s", metricsAddr)
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	api := chatapi.New(apiConfig, func() string { return token })
	session := transport.NewSession(wsConfig)
	client := chat.NewClient(session, api)

	ctx := context.Background()

	if !client.Login(ctx, token) {
		log.Printf("initial connect failed, retrying in background")
	}
	if _, err := client.LoadRooms(ctx); err != nil {
		log.Printf("load rooms: %v", err)
	}

	// Re-render on every coalesced state change.
	go func() {
		for range client.Updates() {
			render(client.Snapshot())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, logging out", sig)
		client.Logout()
		os.Exit(0)
	}()

	render(client.Snapshot())
	printHelp()
	repl(ctx, client)

	client.Logout()
}

// repl reads commands from stdin until EOF or quit.
func repl(ctx context.Context, client *chat.Client) {
	refreshLimit := ratelimit.NewLimiter(ratelimit.RuleRefresh)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, arg := line, ""
		if i := strings.IndexByte(line, ' '); i >= 0 {
			cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
		}

		switch cmd {
		case "rooms":
			if !refreshLimit.Allow("directory") {
				fmt.Println("refreshing too fast, showing cached rooms")
				render(client.Snapshot())
				continue
			}
			if _, err := client.LoadRooms(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
			}
			render(client.Snapshot())

		case "new":
			if arg == "" {
				fmt.Println("usage: new <subject>")
				continue
			}
			room, err := client.CreateRoom(ctx, arg, "general", "normal")
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("created room %s\n", room.RoomID)

		case "open":
			if arg == "" {
				fmt.Println("usage: open <room-id>")
				continue
			}
			if err := client.OpenRoom(ctx, arg); err != nil {
				fmt.Printf("error: %v\n", err)
			}
			render(client.Snapshot())

		case "older":
			fetched, err := client.LoadOlder(ctx)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			if !fetched {
				fmt.Println("no more history")
			}
			render(client.Snapshot())

		case "send":
			if arg == "" {
				fmt.Println("usage: send <text>")
				continue
			}
			if err := client.SendMessage(ctx, arg, chat.MessageText); err != nil {
				fmt.Printf("error: %v\n", err)
			}

		case "leave":
			if arg == "" {
				fmt.Println("usage: leave <room-id>")
				continue
			}
			client.LeaveRoom(arg)

		case "close":
			if arg == "" {
				fmt.Println("usage: close <room-id>")
				continue
			}
			if err := client.CloseRoom(ctx, arg); err != nil {
				fmt.Printf("error: %v\n", err)
			}

		case "quit", "exit":
			return

		case "help":
			printHelp()

		default:
			fmt.Printf("unknown command %q (try help)\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  rooms            refresh and list your support rooms")
	fmt.Println("  new <subject>    open a new support ticket")
	fmt.Println("  open <room-id>   open a room and load its history")
	fmt.Println("  older            load the next page of older messages")
	fmt.Println("  send <text>      send a message to the open room")
	fmt.Println("  leave <room-id>  stop observing a room")
	fmt.Println("  close <room-id>  mark your ticket as closed")
	fmt.Println("  quit             log out and exit")
}

// render prints the current read model. Deliberately plain: newest rooms
// first, messages oldest to newest like a chat transcript.
func render(m chat.ReadModel) {
	status := "offline"
	if m.IsConnected {
		status = "online"
	}
	fmt.Printf("--- [%s] %d rooms", status, len(m.Rooms))
	if m.LastError != nil {
		fmt.Printf("  last error: %v", m.LastError)
	}
	fmt.Println()

	for _, room := range m.Rooms {
		marker := " "
		if room.RoomID == m.ActiveRoomID {
			marker = "*"
		}
		fmt.Printf("%s %-12s %-10s %s\n", marker, room.RoomID, room.Status, room.Subject)
	}

	if m.ActiveRoomID == "" {
		return
	}
	if m.HasMoreMessages {
		fmt.Println("  (older messages available, use 'older')")
	}
	for _, msg := range m.ActiveRoomMessages {
		fmt.Printf("  [%s] %s: %s\n", msg.CreatedAt.Format("15:04"), msg.SenderName, msg.Content)
	}
	if len(m.TypingUsers) > 0 {
		fmt.Printf("  %s typing...\n", strings.Join(m.TypingUsers, ", "))
	}
}
