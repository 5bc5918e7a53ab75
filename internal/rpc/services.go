package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionServiceName = "bazaar.v1.SessionService"
	RoomServiceName    = "bazaar.v1.RoomService"
	MessageServiceName = "bazaar.v1.MessageService"
)

// SessionServer is implemented by the daemon's session service.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
	Connect(context.Context, *Empty) (*ConnectResponse, error)
	Disconnect(context.Context, *Empty) (*ConnectResponse, error)
}

// RoomServer is implemented by the daemon's room service.
type RoomServer interface {
	ListRooms(context.Context, *ListRoomsRequest) (*ListRoomsResponse, error)
	ResolveRoom(context.Context, *ResolveRoomRequest) (*ResolveRoomResponse, error)
	SearchUsers(context.Context, *SearchUsersRequest) (*SearchUsersResponse, error)
}

// MessageServer is implemented by the daemon's message service.
type MessageServer interface {
	OpenRoom(context.Context, *RoomRequest) (*MessagesResponse, error)
	CloseRoom(context.Context, *RoomRequest) (*Empty, error)
	ListMessages(context.Context, *RoomRequest) (*MessagesResponse, error)
	SendText(context.Context, *SendTextRequest) (*SendTextResponse, error)
	WatchEvents(*WatchEventsRequest, EventStream) error
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*EventEnvelope) error
	Context() context.Context
}

// unary builds a grpc method handler that decodes Req and calls fn.
func unary[S any, Req any, Resp any](service, method string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + service + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "Login", SessionServer.Login),
		unary(SessionServiceName, "Logout", SessionServer.Logout),
		unary(SessionServiceName, "Connect", SessionServer.Connect),
		unary(SessionServiceName, "Disconnect", SessionServer.Disconnect),
	},
	Metadata: "bazaar/v1/session",
}

var roomServiceDesc = grpc.ServiceDesc{
	ServiceName: RoomServiceName,
	HandlerType: (*RoomServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(RoomServiceName, "ListRooms", RoomServer.ListRooms),
		unary(RoomServiceName, "ResolveRoom", RoomServer.ResolveRoom),
		unary(RoomServiceName, "SearchUsers", RoomServer.SearchUsers),
	},
	Metadata: "bazaar/v1/room",
}

var messageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "OpenRoom", MessageServer.OpenRoom),
		unary(MessageServiceName, "CloseRoom", MessageServer.CloseRoom),
		unary(MessageServiceName, "ListMessages", MessageServer.ListMessages),
		unary(MessageServiceName, "SendText", MessageServer.SendText),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "bazaar/v1/message",
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *EventEnvelope) error {
	return s.ServerStream.SendMsg(e)
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MessageServer).WatchEvents(in, &eventStream{stream})
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&sessionServiceDesc, srv)
}

func RegisterRoomServer(s grpc.ServiceRegistrar, srv RoomServer) {
	s.RegisterService(&roomServiceDesc, srv)
}

func RegisterMessageServer(s grpc.ServiceRegistrar, srv MessageServer) {
	s.RegisterService(&messageServiceDesc, srv)
}
