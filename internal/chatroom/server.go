package chatroom

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ashureev/pairline/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Ensurer creates chat rooms for unordered pairs.
type Ensurer interface {
	EnsureChatRoom(ctx context.Context, a, b string) (bool, error)
}

var errMissingUsers = errors.New("user_a and user_b are required")

func newEnsureRequest(a, b string) (*structpb.Struct, error) {
	userA, userB := domain.PairKey(a, b)
	req, err := structpb.NewStruct(map[string]any{"user_a": userA, "user_b": userB})
	if err != nil {
		return nil, fmt.Errorf("build ensure room request: %w", err)
	}
	return req, nil
}

// serviceDesc describes the EnsureRoom RPC with structpb messages, so no
// generated stubs are needed on either side.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Ensurer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "EnsureRoom", Handler: ensureRoomHandler},
	},
	Metadata: "pairline/chat/v1/chatrooms.proto",
}

// RegisterServer exposes ensurer as the chat-room service on s. cmd/chatrooms
// serves the store this way; other hosts can mount it next to their own services.
func RegisterServer(s *grpc.Server, ensurer Ensurer) {
	s.RegisterService(&serviceDesc, ensurer)
}

// Serve runs the chat-room service on lis until ctx is cancelled, then stops
// gracefully.
func Serve(ctx context.Context, lis net.Listener, ensurer Ensurer, opts ...grpc.ServerOption) error {
	srv := grpc.NewServer(opts...)
	RegisterServer(srv, ensurer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve chat rooms: %w", err)
	case <-ctx.Done():
		srv.GracefulStop()
		<-errCh
		return nil
	}
}

func ensureRoomHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, in any) (any, error) {
		return ensureRoom(ctx, srv.(Ensurer), in.(*structpb.Struct))
	}
	if interceptor == nil {
		return handler(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ensureRoomMethod}
	return interceptor(ctx, req, info, handler)
}

func ensureRoom(ctx context.Context, ensurer Ensurer, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	userA := fields["user_a"].GetStringValue()
	userB := fields["user_b"].GetStringValue()
	if userA == "" || userB == "" {
		return nil, status.Error(codes.InvalidArgument, errMissingUsers.Error())
	}

	created, err := ensurer.EnsureChatRoom(ctx, userA, userB)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "ensure room: %v", err)
	}
	return structpb.NewStruct(map[string]any{"created": created})
}
