package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// WithToken attaches a bearer token to outgoing calls made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	return c.cc.Invoke(ctx, FullMethod(method), in, out, opts...)
}

func (c *Client) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*IdentityResponse, error) {
	out := new(IdentityResponse)
	if err := c.invoke(ctx, "Register", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*SignInResponse, error) {
	out := new(SignInResponse)
	if err := c.invoke(ctx, "SignIn", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SignOut(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "SignOut", &Empty{}, new(Empty), opts)
}

func (c *Client) Suggest(ctx context.Context, in *SuggestRequest, opts ...grpc.CallOption) (*SuggestResponse, error) {
	out := new(SuggestResponse)
	if err := c.invoke(ctx, "Suggest", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FindIdentity(ctx context.Context, in *FindIdentityRequest, opts ...grpc.CallOption) (*IdentityResponse, error) {
	out := new(IdentityResponse)
	if err := c.invoke(ctx, "FindIdentity", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ChangeAvatar(ctx context.Context, in *ChangeAvatarRequest, opts ...grpc.CallOption) (*ChangeAvatarResponse, error) {
	out := new(ChangeAvatarResponse)
	if err := c.invoke(ctx, "ChangeAvatar", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePost(ctx context.Context, in *CreatePostRequest, opts ...grpc.CallOption) (*PostResponse, error) {
	out := new(PostResponse)
	if err := c.invoke(ctx, "CreatePost", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeletePost(ctx context.Context, in *DeletePostRequest, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "DeletePost", in, new(Empty), opts)
}

func (c *Client) ToggleLike(ctx context.Context, in *ToggleLikeRequest, opts ...grpc.CallOption) (*ToggleLikeResponse, error) {
	out := new(ToggleLikeResponse)
	if err := c.invoke(ctx, "ToggleLike", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListIdentities(ctx context.Context, opts ...grpc.CallOption) (*ListIdentitiesResponse, error) {
	out := new(ListIdentitiesResponse)
	if err := c.invoke(ctx, "ListIdentities", &Empty{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SetRole(ctx context.Context, in *SetRoleRequest, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "SetRole", in, new(Empty), opts)
}

func (c *Client) DeleteIdentity(ctx context.Context, in *DeleteIdentityRequest, opts ...grpc.CallOption) (*DeleteIdentityResponse, error) {
	out := new(DeleteIdentityResponse)
	if err := c.invoke(ctx, "DeleteIdentity", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ReconcileLikes(ctx context.Context, in *ReconcileLikesRequest, opts ...grpc.CallOption) (*ReconcileLikesResponse, error) {
	out := new(ReconcileLikesResponse)
	if err := c.invoke(ctx, "ReconcileLikes", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// FeedClient receives the updates of a SubscribeFeed call.
type FeedClient interface {
	Recv() (*FeedUpdate, error)
	grpc.ClientStream
}

type feedClient struct {
	grpc.ClientStream
}

func (c *feedClient) Recv() (*FeedUpdate, error) {
	m := new(FeedUpdate)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) SubscribeFeed(ctx context.Context, in *SubscribeFeedRequest, opts ...grpc.CallOption) (FeedClient, error) {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod("SubscribeFeed"), opts...)
	if err != nil {
		return nil, err
	}
	x := &feedClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
