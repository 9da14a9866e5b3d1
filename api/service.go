package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "candle.Candle"

// FullMethod returns the gRPC method path of name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// CandleServer is the server API of the candle service.
type CandleServer interface {
	Register(context.Context, *RegisterRequest) (*IdentityResponse, error)
	SignIn(context.Context, *SignInRequest) (*SignInResponse, error)
	SignOut(context.Context, *Empty) (*Empty, error)
	Suggest(context.Context, *SuggestRequest) (*SuggestResponse, error)
	FindIdentity(context.Context, *FindIdentityRequest) (*IdentityResponse, error)
	ChangeAvatar(context.Context, *ChangeAvatarRequest) (*ChangeAvatarResponse, error)
	CreatePost(context.Context, *CreatePostRequest) (*PostResponse, error)
	DeletePost(context.Context, *DeletePostRequest) (*Empty, error)
	ToggleLike(context.Context, *ToggleLikeRequest) (*ToggleLikeResponse, error)
	ListIdentities(context.Context, *Empty) (*ListIdentitiesResponse, error)
	SetRole(context.Context, *SetRoleRequest) (*Empty, error)
	DeleteIdentity(context.Context, *DeleteIdentityRequest) (*DeleteIdentityResponse, error)
	ReconcileLikes(context.Context, *ReconcileLikesRequest) (*ReconcileLikesResponse, error)
	SubscribeFeed(*SubscribeFeedRequest, FeedServerStream) error
}

// FeedServerStream is the server side of SubscribeFeed.
type FeedServerStream interface {
	Send(*FeedUpdate) error
	grpc.ServerStream
}

type feedServerStream struct {
	grpc.ServerStream
}

func (s *feedServerStream) Send(m *FeedUpdate) error {
	return s.ServerStream.SendMsg(m)
}

func unary[Req any](name string, call func(CandleServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(CandleServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CandleServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", func(s CandleServer, ctx context.Context, r *RegisterRequest) (any, error) { return s.Register(ctx, r) }),
		unary("SignIn", func(s CandleServer, ctx context.Context, r *SignInRequest) (any, error) { return s.SignIn(ctx, r) }),
		unary("SignOut", func(s CandleServer, ctx context.Context, r *Empty) (any, error) { return s.SignOut(ctx, r) }),
		unary("Suggest", func(s CandleServer, ctx context.Context, r *SuggestRequest) (any, error) { return s.Suggest(ctx, r) }),
		unary("FindIdentity", func(s CandleServer, ctx context.Context, r *FindIdentityRequest) (any, error) { return s.FindIdentity(ctx, r) }),
		unary("ChangeAvatar", func(s CandleServer, ctx context.Context, r *ChangeAvatarRequest) (any, error) { return s.ChangeAvatar(ctx, r) }),
		unary("CreatePost", func(s CandleServer, ctx context.Context, r *CreatePostRequest) (any, error) { return s.CreatePost(ctx, r) }),
		unary("DeletePost", func(s CandleServer, ctx context.Context, r *DeletePostRequest) (any, error) { return s.DeletePost(ctx, r) }),
		unary("ToggleLike", func(s CandleServer, ctx context.Context, r *ToggleLikeRequest) (any, error) { return s.ToggleLike(ctx, r) }),
		unary("ListIdentities", func(s CandleServer, ctx context.Context, r *Empty) (any, error) { return s.ListIdentities(ctx, r) }),
		unary("SetRole", func(s CandleServer, ctx context.Context, r *SetRoleRequest) (any, error) { return s.SetRole(ctx, r) }),
		unary("DeleteIdentity", func(s CandleServer, ctx context.Context, r *DeleteIdentityRequest) (any, error) { return s.DeleteIdentity(ctx, r) }),
		unary("ReconcileLikes", func(s CandleServer, ctx context.Context, r *ReconcileLikesRequest) (any, error) { return s.ReconcileLikes(ctx, r) }),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeFeed",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(SubscribeFeedRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(CandleServer).SubscribeFeed(in, &feedServerStream{stream})
			},
		},
	},
}

func RegisterCandleServer(s grpc.ServiceRegistrar, srv CandleServer) {
	s.RegisterService(&ServiceDesc, srv)
}
