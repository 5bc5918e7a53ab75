// Package api implements the daemon's gRPC services over the chat core.
package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/bazaar/internal/auth"
	"github.com/matheus3301/bazaar/internal/backend"
	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chatws"
	"github.com/matheus3301/bazaar/internal/dispatch"
	"github.com/matheus3301/bazaar/internal/rooms"
	"github.com/matheus3301/bazaar/internal/rpc"
	"github.com/matheus3301/bazaar/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// SessionService implements rpc.SessionServer. It owns the signed-in
// credentials and hands the token to the REST client and the socket.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	conn        *chatws.Manager
	bridge      *dispatch.Bridge
	dir         *rooms.Directory
	client      *backend.Client
	db          *store.DB
	bus         *bus.Bus
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.Mutex
	creds *auth.Credentials
}

// NewSessionService creates the session service.
func NewSessionService(
	sessionName string,
	conn *chatws.Manager,
	bridge *dispatch.Bridge,
	dir *rooms.Directory,
	client *backend.Client,
	db *store.DB,
	b *bus.Bus,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		conn:        conn,
		bridge:      bridge,
		dir:         dir,
		client:      client,
		db:          db,
		bus:         b,
		logger:      logger,
		now:         time.Now,
	}
}

// Resume restores saved credentials and connects. It is called once at
// daemon start; missing or expired credentials leave the session signed out.
func (s *SessionService) Resume(ctx context.Context) error {
	creds, err := s.db.LoadCredentials()
	if err != nil {
		return err
	}
	if err := creds.Validate(s.now()); err != nil {
		if creds != nil {
			s.logger.Info("saved credentials rejected", zap.Error(err))
			_ = s.db.ClearCredentials()
		}
		return err
	}
	s.adopt(*creds)
	s.logger.Info("resuming session", zap.Int64("user", creds.UserID))

	if _, err := s.dir.ListRooms(ctx); err != nil {
		s.logger.Warn("initial room list failed", zap.Error(err))
	}
	return s.conn.Connect(ctx, creds.Token)
}

func (s *SessionService) GetStatus(_ context.Context, _ *rpc.Empty) (*rpc.StatusResponse, error) {
	heldRooms, heldMsgs := s.bridge.Held()
	resp := &rpc.StatusResponse{
		Session:           s.sessionName,
		State:             string(s.conn.State()),
		ReconnectAttempts: s.conn.ReconnectAttempts(),
		ActiveRoomID:      s.bridge.ActiveRoom(),
		RoomCount:         len(s.dir.Rooms()),
		HeldRooms:         heldRooms,
		HeldMessages:      heldMsgs,
		UptimeMs:          time.Since(s.startedAt).Milliseconds(),
		DroppedEvents:     s.bus.Dropped(),
		APIURL:            s.client.BaseURL(),
	}
	if r, ok := s.dir.Room(resp.ActiveRoomID); ok {
		resp.ActiveRoomPeer = r.PeerDisplayName
	}
	if creds := s.credentials(); creds != nil {
		resp.LoggedIn = true
		resp.UserID = creds.UserID
		resp.Username = creds.Username
		if claims, err := auth.ParseClaims(creds.Token); err == nil {
			resp.Roles = claims.Roles
			if !claims.ExpiresAt.IsZero() {
				resp.TokenExpiresAt = claims.ExpiresAt.UnixMilli()
			}
		}
	}
	return resp, nil
}

func (s *SessionService) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	var (
		creds auth.Credentials
		err   error
	)
	switch {
	case req.Token != "":
		creds, err = auth.NewCredentials(req.Token, req.UserID, req.Username)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "login: %v", err)
		}
	case strings.TrimSpace(req.Username) != "" && req.Password != "":
		res, err := s.client.Login(ctx, req.Username, req.Password)
		if err != nil {
			return nil, toStatus("login", err)
		}
		creds, err = auth.NewCredentials(res.Token, res.User(), req.Username)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Unavailable, "login: %v", err)
		}
	default:
		return nil, grpcstatus.Error(codes.InvalidArgument, "login: username and password or token required")
	}

	if err := creds.Validate(s.now()); err != nil {
		return nil, toStatus("login", err)
	}
	if err := s.db.SaveCredentials(creds); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "save credentials: %v", err)
	}
	// A previous user's socket must not survive the switch, nor their
	// rooms and messages.
	s.conn.Disconnect()
	if prev := s.credentials(); prev == nil || prev.UserID != creds.UserID {
		s.forget()
	}
	s.adopt(creds)

	resp := &rpc.LoginResponse{UserID: creds.UserID, Username: creds.Username}
	if claims, err := auth.ParseClaims(creds.Token); err == nil && !claims.ExpiresAt.IsZero() {
		resp.ExpiresAt = claims.ExpiresAt.UnixMilli()
	}
	s.bus.Publish(bus.NewEvent(bus.KindSessionLoggedIn, 0, resp))
	s.logger.Info("logged in", zap.Int64("user", creds.UserID), zap.String("username", creds.Username))

	if _, err := s.dir.ListRooms(ctx); err != nil {
		s.logger.Warn("room list after login failed", zap.Error(err))
	}
	if err := s.conn.Connect(ctx, creds.Token); err != nil {
		s.logger.Warn("connect after login failed", zap.Error(err))
	}
	resp.State = string(s.conn.State())
	return resp, nil
}

func (s *SessionService) Logout(_ context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	s.conn.Disconnect()
	if err := s.db.ClearCredentials(); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "clear credentials: %v", err)
	}
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()
	s.client.SetToken("")
	s.bridge.SetUser(0)
	s.forget()

	s.bus.Publish(bus.NewEvent(bus.KindSessionLoggedOut, 0, nil))
	s.logger.Info("logged out")
	return &rpc.Empty{}, nil
}

func (s *SessionService) Connect(ctx context.Context, _ *rpc.Empty) (*rpc.ConnectResponse, error) {
	creds := s.credentials()
	if err := creds.Validate(s.now()); err != nil {
		return nil, toStatus("connect", err)
	}
	if err := s.conn.Connect(ctx, creds.Token); err != nil {
		return nil, toStatus("connect", err)
	}
	return &rpc.ConnectResponse{State: string(s.conn.State())}, nil
}

func (s *SessionService) Disconnect(_ context.Context, _ *rpc.Empty) (*rpc.ConnectResponse, error) {
	s.conn.Disconnect()
	return &rpc.ConnectResponse{State: string(s.conn.State())}, nil
}

func (s *SessionService) adopt(creds auth.Credentials) {
	s.mu.Lock()
	s.creds = &creds
	s.mu.Unlock()
	s.client.SetToken(creds.Token)
	s.bridge.SetUser(creds.UserID)
}

// forget drops everything held for the previous user.
func (s *SessionService) forget() {
	s.dir.Reset()
	s.bridge.Reset()
}

func (s *SessionService) credentials() *auth.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil
	}
	c := *s.creds
	return &c
}
