// Command chat is a terminal client for the campus chat server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/thereayou/campus-chat/internal/dataapi"
	"github.com/thereayou/campus-chat/internal/feed"
	"github.com/thereayou/campus-chat/internal/logger"
	"github.com/thereayou/campus-chat/internal/messaging"
)

const help = `commands:
  /rooms                 list rooms
  /open <room-id>        open a room
  /dm <user-id>          open a private room
  /older                 load older messages
  /attach <path> [text]  send a file
  /pin <msg-id>          pin a message
  /unpin <msg-id>        unpin a message
  /delete <msg-id>       delete a message
  /retry <temp-id>       resend a failed message
  /dismiss <temp-id>     drop a failed message
  /quit
anything else is sent to the open room`

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
	log := logger.New(logger.Options{
		Development: true,
		Level:       envOr("CHAT_LOG_LEVEL", "warn"),
		File:        os.Getenv("CHAT_LOG_FILE"),
	})

	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "chat:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(log zerolog.Logger) error {
	baseURL := envOr("CHAT_URL", "http://localhost:8080")
	email, password := os.Getenv("CHAT_EMAIL"), os.Getenv("CHAT_PASSWORD")
	if email == "" || password == "" {
		return errors.New("CHAT_EMAIL and CHAT_PASSWORD must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := dataapi.New(baseURL, dataapi.WithLogger(log))
	me, err := api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	events, err := feed.Subscribe(ctx, baseURL, api.Token(), feed.WithLogger(log))
	if err != nil {
		return err
	}
	client := messaging.New(me.Uid, api, messaging.WithLogger(log))
	go client.Run(ctx, events)

	out := bufio.NewWriter(os.Stdout)
	ui := &terminal{client: client, self: me.Uid, out: out, shown: make(map[string]string)}
	fmt.Fprintf(out, "logged in as %s (%s)\n%s\n", me.Username, me.Uid, help)
	out.Flush()

	updates, unsubscribe := client.Subscribe()
	defer unsubscribe()
	lines := readLines(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-updates:
			ui.onUpdate(u)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := ui.exec(ctx, line); quit {
				return nil
			}
		}
		out.Flush()
	}
}

func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// exec runs one input line and reports whether the user asked to quit.
func (t *terminal) exec(ctx context.Context, line string) bool {
	cmd, arg := parseCommand(line)
	var err error
	switch cmd {
	case "":
		return false
	case "quit":
		return true
	case "help":
		fmt.Fprintln(t.out, help)
	case "rooms":
		t.printRooms()
	case "open":
		t.shown = make(map[string]string)
		err = t.client.OpenRoom(arg)
	case "dm":
		var room messaging.Room
		if room, err = t.client.OpenPrivateRoom(ctx, arg); err == nil {
			t.shown = make(map[string]string)
			err = t.client.OpenRoom(room.ID)
		}
	case "older":
		err = t.client.LoadOlder()
	case "attach":
		err = t.attach(ctx, arg)
	case "pin", "unpin":
		err = t.client.SetPinned(ctx, arg, cmd == "pin")
	case "delete":
		err = t.client.SoftDelete(ctx, arg)
	case "retry":
		_, err = t.client.Retry(arg)
	case "dismiss":
		err = t.client.Dismiss(arg)
	case "say":
		room := t.client.OpenRoomID()
		if room == "" {
			err = messaging.ErrNoOpenRoom
			break
		}
		_, err = t.client.Send(room, arg)
	default:
		err = fmt.Errorf("unknown command /%s", cmd)
	}
	if err != nil {
		fmt.Fprintln(t.out, "!", err)
	}
	return false
}

func (t *terminal) attach(ctx context.Context, arg string) error {
	path, caption, _ := strings.Cut(arg, " ")
	room := t.client.OpenRoomID()
	if room == "" {
		return messaging.ErrNoOpenRoom
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	_, err = t.client.SendAttachment(ctx, room, caption, messaging.Upload{
		Name:        filepath.Base(path),
		ContentType: ct,
		Data:        data,
	})
	return err
}
