package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/rpc"
	"github.com/matheus3301/bazaar/internal/session"
	"github.com/matheus3301/bazaar/internal/tui/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeoutFlag := flag.Duration("timeout", 10*time.Second, "per-call timeout")
	flag.Usage = printUsage
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := session.SocketPath(sessionName)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := &printer{json: *jsonFlag}
	cmd, rest := args[0], args[1:]

	// watch streams until interrupted; everything else is a single call.
	if cmd == "watch" {
		err = cmdWatch(ctx, c, rest, out)
	} else {
		callCtx, cancel := context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
		err = run(callCtx, c, cmd, rest, out)
	}
	if err != nil {
		fail(err)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string, out *printer) error {
	switch cmd {
	case "status":
		return cmdStatus(ctx, c, out)
	case "login":
		return cmdLogin(ctx, c, args, out)
	case "logout":
		if err := c.Session.Logout(ctx); err != nil {
			return err
		}
		out.line("Signed out.")
		return nil
	case "connect":
		resp, err := c.Session.Connect(ctx)
		if err != nil {
			return err
		}
		return out.value(resp, "Connection: %s\n", resp.State)
	case "disconnect":
		resp, err := c.Session.Disconnect(ctx)
		if err != nil {
			return err
		}
		return out.value(resp, "Connection: %s\n", resp.State)
	case "rooms":
		return cmdRooms(ctx, c, args, out)
	case "open", "messages":
		return cmdMessages(ctx, c, cmd, args, out)
	case "close":
		id, err := roomArg(args)
		if err != nil {
			return err
		}
		return c.Message.CloseRoom(ctx, id)
	case "send":
		return cmdSend(ctx, c, args, out)
	case "search":
		return cmdSearch(ctx, c, args, out)
	case "resolve":
		return cmdResolve(ctx, c, args, out)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: bazaarctl [--session <name>] [--json] [--timeout <d>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show session and connection status")
	fmt.Fprintln(os.Stderr, "  login -u <user> [-p <pass>]    Sign in (password also read from $BAZAAR_PASSWORD)")
	fmt.Fprintln(os.Stderr, "  login -token <jwt> -id <n>     Sign in with an existing token")
	fmt.Fprintln(os.Stderr, "  logout                         Sign out and forget credentials")
	fmt.Fprintln(os.Stderr, "  connect | disconnect           Open or close the chat socket")
	fmt.Fprintln(os.Stderr, "  rooms [-refresh]               List rooms")
	fmt.Fprintln(os.Stderr, "  open <room>                    Open a room and print its messages")
	fmt.Fprintln(os.Stderr, "  close <room>                   Close a room")
	fmt.Fprintln(os.Stderr, "  messages <room>                Print cached messages of a room")
	fmt.Fprintln(os.Stderr, "  send <room> <text...>          Send a message")
	fmt.Fprintln(os.Stderr, "  search <query>                 Search users")
	fmt.Fprintln(os.Stderr, "  resolve <user-id> [name]       Find or create the room with a user")
	fmt.Fprintln(os.Stderr, "  watch [prefix]                 Stream daemon events")
}

func cmdStatus(ctx context.Context, c *client.Client, out *printer) error {
	resp, err := c.Session.GetStatus(ctx)
	if err != nil {
		return err
	}
	if out.json {
		return out.encode(resp)
	}
	user := "(signed out)"
	if resp.LoggedIn {
		user = fmt.Sprintf("%s (id %d)", resp.Username, resp.UserID)
		if len(resp.Roles) > 0 {
			user += " " + strings.Join(resp.Roles, ",")
		}
	}
	fmt.Printf("Session:     %s\n", resp.Session)
	fmt.Printf("User:        %s\n", user)
	fmt.Printf("Connection:  %s\n", resp.State)
	fmt.Printf("Reconnects:  %d\n", resp.ReconnectAttempts)
	fmt.Printf("Rooms:       %d\n", resp.RoomCount)
	fmt.Printf("Held:        %d messages in %d rooms\n", resp.HeldMessages, resp.HeldRooms)
	if resp.ActiveRoomID != 0 {
		fmt.Printf("Active room: %d %s\n", resp.ActiveRoomID, resp.ActiveRoomPeer)
	}
	if resp.TokenExpiresAt != 0 {
		fmt.Printf("Token until: %s\n", time.UnixMilli(resp.TokenExpiresAt).Format(time.RFC3339))
	}
	fmt.Printf("Backend:     %s\n", resp.APIURL)
	fmt.Printf("Uptime:      %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	return nil
}

func cmdLogin(ctx context.Context, c *client.Client, args []string, out *printer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	token := fs.String("token", "", "existing access token")
	userID := fs.Int64("id", 0, "user id for -token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := &rpc.LoginRequest{Username: *username, Password: *password, Token: *token, UserID: *userID}
	if req.Token == "" {
		if req.Username == "" && fs.NArg() > 0 {
			req.Username = fs.Arg(0)
		}
		if req.Password == "" {
			req.Password = os.Getenv("BAZAAR_PASSWORD")
		}
		if req.Username == "" || req.Password == "" {
			return errors.New("login needs -u and -p (or $BAZAAR_PASSWORD), or -token")
		}
	}

	resp, err := c.Session.Login(ctx, req)
	if err != nil {
		return err
	}
	return out.value(resp, "Signed in as %s (id %d), connection %s\n", resp.Username, resp.UserID, resp.State)
}

func cmdRooms(ctx context.Context, c *client.Client, args []string, out *printer) error {
	fs := flag.NewFlagSet("rooms", flag.ContinueOnError)
	refresh := fs.Bool("refresh", false, "re-list from the backend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := c.Room.ListRooms(ctx, &rpc.ListRoomsRequest{Refresh: *refresh})
	if err != nil {
		return err
	}
	if out.json {
		return out.encode(resp)
	}
	if len(resp.Rooms) == 0 {
		fmt.Println("No rooms.")
		return nil
	}
	for _, r := range resp.Rooms {
		unread := ""
		if r.Unread > 0 {
			unread = fmt.Sprintf(" (%d unread)", r.Unread)
		}
		fmt.Printf("%6d  %-24s %s%s\n", r.ID, r.PeerDisplayName, chat.Preview(r.LastMessagePreview, 40), unread)
	}
	return nil
}

func cmdMessages(ctx context.Context, c *client.Client, cmd string, args []string, out *printer) error {
	id, err := roomArg(args)
	if err != nil {
		return err
	}
	var resp *rpc.MessagesResponse
	if cmd == "open" {
		resp, err = c.Message.OpenRoom(ctx, id)
	} else {
		resp, err = c.Message.ListMessages(ctx, id)
	}
	if err != nil {
		return err
	}
	if out.json {
		return out.encode(resp)
	}
	for _, m := range resp.Messages {
		printMessage(m)
	}
	return nil
}

func cmdSend(ctx context.Context, c *client.Client, args []string, out *printer) error {
	id, err := roomArg(args)
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = strings.TrimRight(string(data), "\n")
	}
	resp, err := c.Message.SendText(ctx, &rpc.SendTextRequest{RoomID: id, Text: text})
	if err != nil {
		return err
	}
	return out.value(resp, "Sent to room %d.\n", resp.Message.RoomID)
}

func cmdSearch(ctx context.Context, c *client.Client, args []string, out *printer) error {
	query := strings.Join(args, " ")
	if query == "" {
		return errors.New("usage: bazaarctl search <query>")
	}
	resp, err := c.Room.SearchUsers(ctx, &rpc.SearchUsersRequest{Query: query})
	if err != nil {
		return err
	}
	if out.json {
		return out.encode(resp)
	}
	if resp.Cached {
		fmt.Fprintln(os.Stderr, "backend unreachable, showing cached users")
	}
	for _, u := range resp.Users {
		fmt.Printf("%6d  %-20s %-20s %s\n", u.ID, u.Username, u.Name, u.Email)
	}
	return nil
}

func cmdResolve(ctx context.Context, c *client.Client, args []string, out *printer) error {
	if len(args) == 0 {
		return errors.New("usage: bazaarctl resolve <user-id> [name]")
	}
	peer, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	resp, err := c.Room.ResolveRoom(ctx, &rpc.ResolveRoomRequest{
		PeerUserID: peer,
		PeerName:   strings.Join(args[1:], " "),
	})
	if err != nil {
		return err
	}
	return out.value(resp, "Room %d with %s\n", resp.Room.ID, resp.Room.PeerDisplayName)
}

func cmdWatch(ctx context.Context, c *client.Client, args []string, out *printer) error {
	req := &rpc.WatchEventsRequest{}
	if len(args) > 0 {
		req.Prefix = args[0]
	}
	rx, err := c.Message.WatchEvents(ctx, req)
	if err != nil {
		return err
	}
	for {
		env, err := rx.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if out.json {
			if err := out.encode(env); err != nil {
				return err
			}
			continue
		}
		ts := time.UnixMilli(env.OccurredAtUnixMs).Format("15:04:05")
		fmt.Printf("%s %-22s room=%d %s\n", ts, env.Kind, env.RoomID, env.Payload)
	}
}

func printMessage(m chat.Message) {
	ts := chat.ParseDate(m.Date)
	when := m.Date
	if !ts.IsZero() {
		when = ts.Local().Format("2006-01-02 15:04")
	}
	fmt.Printf("[%s] user %d: %s\n", when, m.Author(), m.Body)
}

func roomArg(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.New("missing room id")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room id %q", args[0])
	}
	return id, nil
}

type printer struct {
	json bool
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// value prints v as JSON, or the formatted line otherwise.
func (p *printer) value(v any, format string, a ...any) error {
	if p.json {
		return p.encode(v)
	}
	fmt.Printf(format, a...)
	return nil
}

func (p *printer) line(s string) {
	if !p.json {
		fmt.Println(s)
	}
}

func fail(err error) {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable:
			fmt.Fprintf(os.Stderr, "error: %s (is bazaard running?)\n", st.Message())
		case codes.Unauthenticated:
			fmt.Fprintf(os.Stderr, "error: %s (try: bazaarctl login)\n", st.Message())
		default:
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", strings.ToLower(st.Code().String()), st.Message())
		}
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
