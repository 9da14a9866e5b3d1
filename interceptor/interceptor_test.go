package interceptor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	models "github.com/mathewtroy/candle/model"
)

type mapResolver map[string]*models.Session

func (m mapResolver) Resolve(ctx context.Context, token string) (*models.Session, error) {
	s, ok := m[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return s, nil
}

func withAuth(value string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", value))
}

func TestUnary(t *testing.T) {
	resolver := mapResolver{"good": {ID: "s1", UserID: "u1"}}
	auth := NewAuthInterceptor(resolver, []string{"/svc/Public"})

	var got *models.Session
	handler := func(ctx context.Context, req any) (any, error) {
		got, _ = SessionFromContext(ctx)
		return "ok", nil
	}
	call := func(ctx context.Context, method string) error {
		got = nil
		_, err := auth.Unary()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}

	t.Run("private with valid token", func(t *testing.T) {
		require.NoError(t, call(withAuth("Bearer good"), "/svc/Private"))
		require.NotNil(t, got)
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("private without token", func(t *testing.T) {
		err := call(context.Background(), "/svc/Private")
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("private with bad scheme", func(t *testing.T) {
		err := call(withAuth("Basic good"), "/svc/Private")
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("private with unknown token", func(t *testing.T) {
		err := call(withAuth("Bearer nope"), "/svc/Private")
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("public anonymous", func(t *testing.T) {
		require.NoError(t, call(context.Background(), "/svc/Public"))
		assert.Nil(t, got)
	})

	t.Run("public with invalid token", func(t *testing.T) {
		require.NoError(t, call(withAuth("Bearer nope"), "/svc/Public"))
		assert.Nil(t, got)
	})

	t.Run("public with valid token", func(t *testing.T) {
		require.NoError(t, call(withAuth("Bearer good"), "/svc/Public"))
		require.NotNil(t, got)
		assert.Equal(t, "s1", got.ID)
	})
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func TestStream(t *testing.T) {
	auth := NewAuthInterceptor(mapResolver{"good": {UserID: "u1"}}, nil)
	auth.AddPublicMethod("/svc/Watch")

	var got *models.Session
	handler := func(srv any, stream grpc.ServerStream) error {
		got, _ = SessionFromContext(stream.Context())
		return nil
	}

	err := auth.Stream()(nil, &fakeStream{ctx: withAuth("Bearer good")}, &grpc.StreamServerInfo{FullMethod: "/svc/Watch"}, handler)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)

	err = auth.Stream()(nil, &fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/svc/Other"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
