package interceptor

import (
	"context"
	"log"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	models "github.com/mathewtroy/candle/model"
)

// ContextKey type for context keys
type ContextKey string

const (
	SessionKey ContextKey = "session"
)

// SessionResolver turns a bearer token into the session it belongs to.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.Session, error)
}

// AuthInterceptor resolves the caller's session for every RPC. Public
// methods run without one but still receive it when a valid token is
// supplied.
type AuthInterceptor struct {
	sessions      SessionResolver
	publicMethods map[string]bool
}

// NewAuthInterceptor creates a new auth interceptor with public methods
func NewAuthInterceptor(sessions SessionResolver, publicMethods []string) *AuthInterceptor {
	methodMap := make(map[string]bool)
	for _, method := range publicMethods {
		methodMap[method] = true
	}

	return &AuthInterceptor{
		sessions:      sessions,
		publicMethods: methodMap,
	}
}

// AddPublicMethod adds a method that doesn't require authentication
func (interceptor *AuthInterceptor) AddPublicMethod(method string) {
	interceptor.publicMethods[method] = true
}

// Unary returns a server interceptor function to authenticate unary RPC
func (interceptor *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := interceptor.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns a server interceptor function to authenticate stream RPC
func (interceptor *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := interceptor.authenticate(stream.Context(), info.FullMethod)
		if err != nil {
			return err
		}

		wrappedStream := &wrappedStream{
			ServerStream: stream,
			ctx:          ctx,
		}
		return handler(srv, wrappedStream)
	}
}

func (interceptor *AuthInterceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	if interceptor.publicMethods[method] {
		token, err := tokenFromContext(ctx)
		if err != nil {
			return ctx, nil
		}
		s, err := interceptor.sessions.Resolve(ctx, token)
		if err != nil {
			return ctx, nil
		}
		return ContextWithSession(ctx, s), nil
	}

	s, err := interceptor.authorize(ctx)
	if err != nil {
		return nil, err
	}
	return ContextWithSession(ctx, s), nil
}

// authorize resolves the bearer token of the call to a session
func (interceptor *AuthInterceptor) authorize(ctx context.Context) (*models.Session, error) {
	token, err := tokenFromContext(ctx)
	if err != nil {
		return nil, err
	}

	s, err := interceptor.sessions.Resolve(ctx, token)
	if err != nil {
		log.Printf("Rejected session token: %v", err)
		return nil, status.Error(codes.Unauthenticated, "invalid or expired session")
	}
	return s, nil
}

func tokenFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "metadata is not provided")
	}

	values := md["authorization"]
	if len(values) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization token is not provided")
	}

	token := values[0]
	if !strings.HasPrefix(token, "Bearer ") {
		return "", status.Error(codes.Unauthenticated, "invalid authorization format")
	}
	return strings.TrimPrefix(token, "Bearer "), nil
}

// wrappedStream wraps grpc.ServerStream with a custom context
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

// SessionFromContext returns the caller's session, if any.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*models.Session)
	return s, ok && s != nil
}

// ContextWithSession attaches s the way the interceptor does.
func ContextWithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}
