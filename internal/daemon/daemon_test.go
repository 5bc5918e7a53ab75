package daemon

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/matheus3301/bazaar/internal/auth"
	"github.com/matheus3301/bazaar/internal/backend"
	"github.com/matheus3301/bazaar/internal/backend/backendtest"
	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/config"
	"github.com/matheus3301/bazaar/internal/lock"
	"github.com/matheus3301/bazaar/internal/rpc"
	"github.com/matheus3301/bazaar/internal/session"
	"github.com/matheus3301/bazaar/internal/store"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const sessionName = "test"

var alice = chat.User{ID: 3, Username: "alice", Name: "Alice"}

// setup points BAZAAR_HOME at a short temp dir (Unix socket paths are
// length-limited) and starts a fake backend.
func setup(t *testing.T) (*backendtest.Server, *config.Config) {
	t.Helper()
	home, err := os.MkdirTemp("/tmp", "bazaar-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv(session.EnvHome, home)

	fake := backendtest.New(t)
	fake.RequireToken()
	fake.AddAccount(backendtest.Account{User: alice, Password: "secret"})

	cfg := config.Default()
	cfg.APIURL = fake.APIURL()
	cfg.WSURL = fake.ChatURL()
	cfg.ReconnectInterval = config.Duration{Duration: 50 * time.Millisecond}
	return fake, cfg
}

func startDaemon(t *testing.T, cfg *config.Config) *fx.App {
	t.Helper()
	app := fx.New(Module(Params{SessionName: sessionName, Config: cfg}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})
	return app
}

func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(
		"unix://"+session.SocketPath(sessionName),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitState(t *testing.T, c *rpc.SessionClient, want string) *rpc.StatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := c.GetStatus(context.Background())
		if err == nil && st.State == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never reached %s (last %+v, %v)", want, st, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	fake, cfg := setup(t)
	fake.AddRoom(backend.RoomSummary{ID: 7, OtherUserID: 4, OtherUserName: "bob"})
	fake.AddMessages(7, chat.Message{ID: 1, SenderID: 4, Body: "is it available?", Date: "2025-01-15T12:00:00"})
	startDaemon(t, cfg)

	conn := dial(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Health probe.
	hc := healthpb.NewHealthClient(conn)
	hresp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{}, grpc.WaitForReady(true))
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if hresp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %v, want SERVING", hresp.Status)
	}

	// No saved credentials: signed out and idle.
	sessions := rpc.NewSessionClient(conn)
	st, err := sessions.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Session != sessionName || st.LoggedIn || st.State != "IDLE" {
		t.Errorf("status = %+v", st)
	}

	msgs := rpc.NewMessageClient(conn)
	rx, err := msgs.WatchEvents(ctx, &rpc.WatchEventsRequest{Prefix: "message."})
	if err != nil {
		t.Fatalf("WatchEvents() error = %v", err)
	}

	login, err := sessions.Login(ctx, &rpc.LoginRequest{Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.State != "OPEN" {
		t.Errorf("state after login = %s", login.State)
	}

	rooms, err := rpc.NewRoomClient(conn).ListRooms(ctx, &rpc.ListRoomsRequest{})
	if err != nil || len(rooms.Rooms) != 1 || rooms.Rooms[0].ID != 7 {
		t.Fatalf("ListRooms() = %+v, %v", rooms, err)
	}

	opened, err := msgs.OpenRoom(ctx, 7)
	if err != nil || len(opened.Messages) != 1 {
		t.Fatalf("OpenRoom() = %+v, %v", opened, err)
	}

	fake.Push(chat.Message{ID: 2, RoomID: 7, SenderID: 4, Body: "still here", Date: "2025-01-15T12:00:05"})
	env, err := rx.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	var m chat.Message
	if err := env.Decode(&m); err != nil {
		t.Fatal(err)
	}
	if env.Kind != bus.KindMessageUpserted || env.RoomID != 7 || m.ID != 2 {
		t.Errorf("event = %+v, message %+v", env, m)
	}

	// The daemon owns the session: a second one cannot start.
	_, err = lock.Acquire(session.Dir(sessionName))
	var held *lock.LockHeldError
	if !errors.As(err, &held) || held.PID != os.Getpid() {
		t.Errorf("second Acquire() error = %v, want LockHeldError for this process", err)
	}
}

func TestDaemonResumesSavedSession(t *testing.T) {
	fake, cfg := setup(t)

	if err := session.EnsureDir(sessionName); err != nil {
		t.Fatal(err)
	}
	db, err := store.Open(session.DBPath(sessionName))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	tok := fake.IssueToken(alice, time.Hour)
	if err := db.SaveCredentials(auth.Credentials{Token: tok, UserID: alice.ID, Username: alice.Username}); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	startDaemon(t, cfg)
	st := waitState(t, rpc.NewSessionClient(dial(t)), "OPEN")
	if !st.LoggedIn || st.UserID != alice.ID {
		t.Errorf("status = %+v", st)
	}
}
