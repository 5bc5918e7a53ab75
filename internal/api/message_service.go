package api

import (
	"context"
	"strconv"
	"sync"

	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/dispatch"
	"github.com/matheus3301/bazaar/internal/rpc"
	"github.com/matheus3301/bazaar/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const watchBuffer = 256

// MessageService implements rpc.MessageServer.
type MessageService struct {
	bridge *dispatch.Bridge
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMessageService creates the message service.
func NewMessageService(bridge *dispatch.Bridge, db *store.DB, b *bus.Bus, logger *zap.Logger) *MessageService {
	return &MessageService{bridge: bridge, db: db, bus: b, logger: logger, closed: make(chan struct{})}
}

// Close ends every open event stream so the server can stop gracefully.
func (s *MessageService) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *MessageService) OpenRoom(ctx context.Context, req *rpc.RoomRequest) (*rpc.MessagesResponse, error) {
	if req.RoomID <= 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "open room: roomId required")
	}
	msgs, err := s.bridge.OpenRoom(ctx, req.RoomID)
	if err != nil {
		return nil, toStatus("open room", err)
	}
	if err := s.db.SetState(store.StateLastRoom, strconv.FormatInt(req.RoomID, 10)); err != nil {
		s.logger.Warn("saving last room failed", zap.Error(err))
	}
	return &rpc.MessagesResponse{Messages: msgs}, nil
}

func (s *MessageService) CloseRoom(_ context.Context, req *rpc.RoomRequest) (*rpc.Empty, error) {
	s.bridge.CloseRoom(req.RoomID)
	return &rpc.Empty{}, nil
}

func (s *MessageService) ListMessages(_ context.Context, req *rpc.RoomRequest) (*rpc.MessagesResponse, error) {
	return &rpc.MessagesResponse{Messages: s.bridge.Messages(req.RoomID)}, nil
}

func (s *MessageService) SendText(ctx context.Context, req *rpc.SendTextRequest) (*rpc.SendTextResponse, error) {
	if req.RoomID <= 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "send text: roomId required")
	}
	m, err := s.bridge.Send(ctx, req.RoomID, req.Text)
	if err != nil {
		return nil, toStatus("send text", err)
	}
	return &rpc.SendTextResponse{Message: m}, nil
}

// WatchEvents streams bus events until the client goes away or the service
// is closed.
func (s *MessageService) WatchEvents(req *rpc.WatchEventsRequest, stream rpc.EventStream) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, watchBuffer)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := envelope(e)
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", e.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		}
	}
}
