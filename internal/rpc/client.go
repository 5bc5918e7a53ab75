package rpc

import (
	"context"

	"google.golang.org/grpc"
)

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionClient calls the session service.
type SessionClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionClient(cc grpc.ClientConnInterface) *SessionClient {
	return &SessionClient{cc: cc}
}

func (c *SessionClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, SessionServiceName, "GetStatus", &Empty{}, opts)
}

func (c *SessionClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, SessionServiceName, "Login", in, opts)
}

func (c *SessionClient) Logout(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, SessionServiceName, "Logout", &Empty{}, opts)
	return err
}

func (c *SessionClient) Connect(ctx context.Context, opts ...grpc.CallOption) (*ConnectResponse, error) {
	return invoke[ConnectResponse](ctx, c.cc, SessionServiceName, "Connect", &Empty{}, opts)
}

func (c *SessionClient) Disconnect(ctx context.Context, opts ...grpc.CallOption) (*ConnectResponse, error) {
	return invoke[ConnectResponse](ctx, c.cc, SessionServiceName, "Disconnect", &Empty{}, opts)
}

// RoomClient calls the room service.
type RoomClient struct {
	cc grpc.ClientConnInterface
}

func NewRoomClient(cc grpc.ClientConnInterface) *RoomClient {
	return &RoomClient{cc: cc}
}

func (c *RoomClient) ListRooms(ctx context.Context, in *ListRoomsRequest, opts ...grpc.CallOption) (*ListRoomsResponse, error) {
	return invoke[ListRoomsResponse](ctx, c.cc, RoomServiceName, "ListRooms", in, opts)
}

func (c *RoomClient) ResolveRoom(ctx context.Context, in *ResolveRoomRequest, opts ...grpc.CallOption) (*ResolveRoomResponse, error) {
	return invoke[ResolveRoomResponse](ctx, c.cc, RoomServiceName, "ResolveRoom", in, opts)
}

func (c *RoomClient) SearchUsers(ctx context.Context, in *SearchUsersRequest, opts ...grpc.CallOption) (*SearchUsersResponse, error) {
	return invoke[SearchUsersResponse](ctx, c.cc, RoomServiceName, "SearchUsers", in, opts)
}

// MessageClient calls the message service.
type MessageClient struct {
	cc grpc.ClientConnInterface
}

func NewMessageClient(cc grpc.ClientConnInterface) *MessageClient {
	return &MessageClient{cc: cc}
}

func (c *MessageClient) OpenRoom(ctx context.Context, roomID int64, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, MessageServiceName, "OpenRoom", &RoomRequest{RoomID: roomID}, opts)
}

func (c *MessageClient) CloseRoom(ctx context.Context, roomID int64, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, MessageServiceName, "CloseRoom", &RoomRequest{RoomID: roomID}, opts)
	return err
}

func (c *MessageClient) ListMessages(ctx context.Context, roomID int64, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, MessageServiceName, "ListMessages", &RoomRequest{RoomID: roomID}, opts)
}

func (c *MessageClient) SendText(ctx context.Context, in *SendTextRequest, opts ...grpc.CallOption) (*SendTextResponse, error) {
	return invoke[SendTextResponse](ctx, c.cc, MessageServiceName, "SendText", in, opts)
}

// EventReceiver is the client side of WatchEvents.
type EventReceiver struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the daemon ends
// the stream.
func (r *EventReceiver) Recv() (*EventEnvelope, error) {
	e := new(EventEnvelope)
	if err := r.stream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

// WatchEvents opens an event stream. Cancel ctx to stop it.
func (c *MessageClient) WatchEvents(ctx context.Context, in *WatchEventsRequest, opts ...grpc.CallOption) (*EventReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &messageServiceDesc.Streams[0], "/"+MessageServiceName+"/WatchEvents", callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventReceiver{stream: stream}, nil
}
