package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/bazaar/internal/chat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type stubMessages struct {
	sent chan *SendTextRequest
}

func (s *stubMessages) OpenRoom(_ context.Context, in *RoomRequest) (*MessagesResponse, error) {
	if in.RoomID == 404 {
		return nil, status.Error(codes.NotFound, "no such room")
	}
	return &MessagesResponse{Messages: []chat.Message{{ID: 1, RoomID: in.RoomID, Body: "hi"}}}, nil
}

func (s *stubMessages) CloseRoom(context.Context, *RoomRequest) (*Empty, error) {
	return &Empty{}, nil
}

func (s *stubMessages) ListMessages(ctx context.Context, in *RoomRequest) (*MessagesResponse, error) {
	return s.OpenRoom(ctx, in)
}

func (s *stubMessages) SendText(_ context.Context, in *SendTextRequest) (*SendTextResponse, error) {
	s.sent <- in
	return &SendTextResponse{Message: chat.Message{ID: 9, RoomID: in.RoomID, Body: in.Text}}, nil
}

func (s *stubMessages) WatchEvents(in *WatchEventsRequest, stream EventStream) error {
	for i := range 3 {
		if err := stream.Send(&EventEnvelope{EventID: in.Prefix, Kind: "message.upserted", RoomID: int64(i + 1)}); err != nil {
			return err
		}
	}
	return nil
}

func serve(t *testing.T, register func(*grpc.Server)) *grpc.ClientConn {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "bazaar-rpc-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "d.sock")

	lis, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("unix://"+sock, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestUnaryRoundTrip(t *testing.T) {
	stub := &stubMessages{sent: make(chan *SendTextRequest, 1)}
	conn := serve(t, func(s *grpc.Server) { RegisterMessageServer(s, stub) })
	c := NewMessageClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.SendText(ctx, &SendTextRequest{RoomID: 7, Text: "hello"})
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if resp.Message.ID != 9 || resp.Message.Body != "hello" {
		t.Errorf("response = %+v", resp.Message)
	}
	if got := <-stub.sent; got.RoomID != 7 || got.Text != "hello" {
		t.Errorf("server got %+v", got)
	}

	msgs, err := c.OpenRoom(ctx, 7)
	if err != nil {
		t.Fatalf("OpenRoom() error = %v", err)
	}
	if len(msgs.Messages) != 1 || msgs.Messages[0].RoomID != 7 {
		t.Errorf("messages = %+v", msgs.Messages)
	}
}

func TestStatusCodesSurvive(t *testing.T) {
	stub := &stubMessages{}
	conn := serve(t, func(s *grpc.Server) { RegisterMessageServer(s, stub) })

	_, err := NewMessageClient(conn).OpenRoom(context.Background(), 404)
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound (err %v)", status.Code(err), err)
	}
}

func TestWatchEventsStream(t *testing.T) {
	stub := &stubMessages{}
	conn := serve(t, func(s *grpc.Server) { RegisterMessageServer(s, stub) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rx, err := NewMessageClient(conn).WatchEvents(ctx, &WatchEventsRequest{Prefix: "message."})
	if err != nil {
		t.Fatalf("WatchEvents() error = %v", err)
	}
	var rooms []int64
	for {
		e, err := rx.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if e.EventID != "message." {
			t.Errorf("request prefix not delivered: %+v", e)
		}
		rooms = append(rooms, e.RoomID)
	}
	if len(rooms) != 3 || rooms[0] != 1 || rooms[2] != 3 {
		t.Errorf("rooms = %v, want [1 2 3]", rooms)
	}
}

func TestEnvelopeDecode(t *testing.T) {
	e := EventEnvelope{Payload: []byte(`{"from":"CONNECTING","to":"OPEN"}`)}
	var sc StateChange
	if err := e.Decode(&sc); err != nil {
		t.Fatal(err)
	}
	if sc.From != "CONNECTING" || sc.To != "OPEN" {
		t.Errorf("decoded %+v", sc)
	}

	var empty EventEnvelope
	if err := empty.Decode(&sc); err != nil {
		t.Errorf("Decode(empty) error = %v", err)
	}
}

func TestCodecEmptyPayload(t *testing.T) {
	var e Empty
	if err := (jsonCodec{}).Unmarshal(nil, &e); err != nil {
		t.Errorf("Unmarshal(nil) error = %v", err)
	}
}
