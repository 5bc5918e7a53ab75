package api

import (
	"context"
	"errors"
	"strings"

	"github.com/matheus3301/bazaar/internal/backend"
	"github.com/matheus3301/bazaar/internal/rooms"
	"github.com/matheus3301/bazaar/internal/rpc"
	"github.com/matheus3301/bazaar/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const peerSearchLimit = 20

// RoomService implements rpc.RoomServer.
type RoomService struct {
	dir    *rooms.Directory
	client *backend.Client
	db     *store.DB
	logger *zap.Logger
}

// NewRoomService creates the room service.
func NewRoomService(dir *rooms.Directory, client *backend.Client, db *store.DB, logger *zap.Logger) *RoomService {
	return &RoomService{dir: dir, client: client, db: db, logger: logger}
}

func (s *RoomService) ListRooms(ctx context.Context, req *rpc.ListRoomsRequest) (*rpc.ListRoomsResponse, error) {
	if !req.Refresh && s.dir.Loaded() {
		return &rpc.ListRoomsResponse{Rooms: s.dir.Rooms()}, nil
	}
	list, err := s.dir.ListRooms(ctx)
	if err != nil {
		return nil, toStatus("list rooms", err)
	}
	return &rpc.ListRoomsResponse{Rooms: list}, nil
}

func (s *RoomService) ResolveRoom(ctx context.Context, req *rpc.ResolveRoomRequest) (*rpc.ResolveRoomResponse, error) {
	if req.PeerUserID <= 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "resolve room: peerUserId required")
	}
	peer := rooms.Peer{UserID: req.PeerUserID, Name: req.PeerName, Email: req.PeerEmail}
	if peer.Name == "" {
		if u, err := s.db.GetPeer(req.PeerUserID); err == nil && u != nil {
			peer.Name = u.DisplayName()
			peer.Email = u.Email
		}
	}

	room, err := s.dir.ResolveOrCreateRoom(ctx, peer)
	if err != nil {
		return nil, toStatus("resolve room", err)
	}
	return &rpc.ResolveRoomResponse{Room: room}, nil
}

// SearchUsers asks the backend and remembers the answer. When the backend
// cannot be reached, peers seen earlier are searched instead.
func (s *RoomService) SearchUsers(ctx context.Context, req *rpc.SearchUsersRequest) (*rpc.SearchUsersResponse, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "search users: query required")
	}

	users, err := s.client.SearchUsers(ctx, q)
	if err == nil {
		if err := s.db.UpsertPeers(users); err != nil {
			s.logger.Warn("caching peers failed", zap.Error(err))
		}
		return &rpc.SearchUsersResponse{Users: users}, nil
	}
	if errors.Is(err, backend.ErrUnauthorized) || ctx.Err() != nil {
		return nil, toStatus("search users", err)
	}

	cached, cacheErr := s.db.SearchPeers(q, peerSearchLimit)
	if cacheErr != nil || len(cached) == 0 {
		return nil, toStatus("search users", err)
	}
	s.logger.Info("user search served from cache", zap.String("query", q), zap.Error(err))
	return &rpc.SearchUsersResponse{Users: cached, Cached: true}, nil
}
