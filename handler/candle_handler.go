package handler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mathewtroy/candle/api"
	"github.com/mathewtroy/candle/interceptor"
	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/service"
)

// Services bundles the domain services the handler serves.
type Services struct {
	Registrar  *service.Registrar
	Sessions   *service.Sessions
	Search     *service.Search
	Avatars    *service.AvatarPropagator
	Feeds      *service.FeedSubscriber
	Likes      *service.LikeToggler
	Posts      *service.PostService
	Moderator  *service.Moderator
	Reconciler *service.Reconciler
}

type CandleHandler struct {
	svc      Services
	shutdown chan struct{}
	once     sync.Once
}

func NewCandleHandler(svc Services) *CandleHandler {
	return &CandleHandler{svc: svc, shutdown: make(chan struct{})}
}

// Shutdown ends every open feed stream with Unavailable and refuses new
// ones. Feed streams otherwise only end when the client leaves, which
// would keep a graceful stop waiting forever.
func (h *CandleHandler) Shutdown() {
	h.once.Do(func() { close(h.shutdown) })
}

// Stop ends the feed streams and gracefully stops srv. Calls still running
// after timeout are cut off.
func (h *CandleHandler) Stop(srv *grpc.Server, timeout time.Duration) {
	h.Shutdown()

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		log.Printf("Graceful stop timed out after %s, closing remaining calls", timeout)
		srv.Stop()
		<-stopped
	}
}

var _ api.CandleServer = (*CandleHandler)(nil)

// PublicMethods lists the RPCs callable without a session.
func PublicMethods() []string {
	return []string{
		api.FullMethod("Register"),
		api.FullMethod("SignIn"),
		api.FullMethod("Suggest"),
		api.FullMethod("FindIdentity"),
		api.FullMethod("SubscribeFeed"),
	}
}

func caller(ctx context.Context) (*models.Session, error) {
	s, ok := interceptor.SessionFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "sign in required")
	}
	return s, nil
}

func toImage(img *api.Image) *service.ImageFile {
	if img == nil {
		return nil
	}
	return &service.ImageFile{Name: img.Name, ContentType: img.ContentType, Data: img.Data}
}

// Register creates an identity. It runs to completion even if the client
// goes away so no half-registered account is left behind.
func (h *CandleHandler) Register(ctx context.Context, req *api.RegisterRequest) (*api.IdentityResponse, error) {
	ident, err := h.svc.Registrar.Register(context.WithoutCancel(ctx), service.RegisterInput{
		Handle:   req.Handle,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   toImage(req.Avatar),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.IdentityResponse{Identity: ident}, nil
}

func (h *CandleHandler) SignIn(ctx context.Context, req *api.SignInRequest) (*api.SignInResponse, error) {
	sess, ident, err := h.svc.Sessions.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.SignInResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		Identity:  ident,
	}, nil
}

func (h *CandleHandler) SignOut(ctx context.Context, _ *api.Empty) (*api.Empty, error) {
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Sessions.SignOut(ctx, s.Token); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (h *CandleHandler) Suggest(ctx context.Context, req *api.SuggestRequest) (*api.SuggestResponse, error) {
	handles, err := h.svc.Search.Suggest(ctx, req.Prefix, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.SuggestResponse{Handles: handles}, nil
}

func (h *CandleHandler) FindIdentity(ctx context.Context, req *api.FindIdentityRequest) (*api.IdentityResponse, error) {
	ident, err := h.svc.Search.FindExact(ctx, req.Handle)
	if err != nil {
		return nil, toStatus(err)
	}
	public := *ident
	public.Email = ""
	return &api.IdentityResponse{Identity: &public}, nil
}

// ChangeAvatar is not cancelled by the client going away.
func (h *CandleHandler) ChangeAvatar(ctx context.Context, req *api.ChangeAvatarRequest) (*api.ChangeAvatarResponse, error) {
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	result, err := h.svc.Avatars.ChangeAvatar(context.WithoutCancel(ctx), s.UserID, *toImage(&req.Image))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ChangeAvatarResponse{
		URL:     result.URL,
		Updated: result.Updated,
		Skipped: result.Skipped,
		Failed:  result.Failed,
	}, nil
}

func (h *CandleHandler) CreatePost(ctx context.Context, req *api.CreatePostRequest) (*api.PostResponse, error) {
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	post, err := h.svc.Posts.Create(ctx, s, req.Content)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.PostResponse{Post: post}, nil
}

func (h *CandleHandler) DeletePost(ctx context.Context, req *api.DeletePostRequest) (*api.Empty, error) {
	if req.PostID == "" {
		return nil, status.Error(codes.InvalidArgument, "post_id is required")
	}
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Posts.Delete(ctx, s, req.PostID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (h *CandleHandler) ToggleLike(ctx context.Context, req *api.ToggleLikeRequest) (*api.ToggleLikeResponse, error) {
	if req.PostID == "" {
		return nil, status.Error(codes.InvalidArgument, "post_id is required")
	}
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	result, err := h.svc.Likes.Toggle(ctx, req.PostID, s.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ToggleLikeResponse{Liked: result.Liked}, nil
}

func (h *CandleHandler) ListIdentities(ctx context.Context, _ *api.Empty) (*api.ListIdentitiesResponse, error) {
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := h.svc.Moderator.ListIdentities(ctx, s.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ListIdentitiesResponse{Identities: list}, nil
}

func (h *CandleHandler) SetRole(ctx context.Context, req *api.SetRoleRequest) (*api.Empty, error) {
	if req.IdentityID == "" {
		return nil, status.Error(codes.InvalidArgument, "identity_id is required")
	}
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Moderator.SetRole(ctx, req.IdentityID, models.Role(req.Role), s.UserID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (h *CandleHandler) DeleteIdentity(ctx context.Context, req *api.DeleteIdentityRequest) (*api.DeleteIdentityResponse, error) {
	if req.IdentityID == "" {
		return nil, status.Error(codes.InvalidArgument, "identity_id is required")
	}
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	result, err := h.svc.Moderator.DeleteIdentity(ctx, req.IdentityID, s.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.DeleteIdentityResponse{
		PostsDeleted: result.PostsDeleted,
		PostsFailed:  result.PostsFailed,
	}, nil
}

func (h *CandleHandler) ReconcileLikes(ctx context.Context, req *api.ReconcileLikesRequest) (*api.ReconcileLikesResponse, error) {
	s, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Moderator.RequireAdmin(ctx, s.UserID); err != nil {
		return nil, toStatus(err)
	}

	if req.PostID != "" {
		n, err := h.svc.Reconciler.RecountPost(ctx, req.PostID)
		if err != nil {
			return nil, toStatus(err)
		}
		return &api.ReconcileLikesResponse{Checked: 1, LikeCount: n}, nil
	}

	report, err := h.svc.Reconciler.RecountAll(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ReconcileLikesResponse{
		Checked: report.Checked,
		Fixed:   report.Fixed,
		Failed:  report.Failed,
	}, nil
}

// SubscribeFeed streams an author's posts until the client cancels or the
// feed ends with an error.
func (h *CandleHandler) SubscribeFeed(req *api.SubscribeFeedRequest, stream api.FeedServerStream) error {
	if req.Handle == "" {
		return status.Error(codes.InvalidArgument, "handle is required")
	}

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	go func() {
		select {
		case <-h.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	viewer, _ := interceptor.SessionFromContext(ctx)

	feed := h.svc.Feeds.Subscribe(ctx, req.Handle, viewer)
	defer feed.Cancel()

	for ev := range feed.Events() {
		if ev.Err != nil {
			return toStatus(ev.Err)
		}
		if err := stream.Send(&api.FeedUpdate{Posts: ev.Posts}); err != nil {
			return err
		}
	}

	select {
	case <-h.shutdown:
		return status.Error(codes.Unavailable, "server is shutting down")
	default:
	}
	if err := stream.Context().Err(); err != nil {
		return status.FromContextError(err).Err()
	}
	return nil
}

// toStatus maps domain errors to gRPC status errors.
func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrMissingPassword),
		errors.Is(err, service.ErrInvalidImage):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrHandleTaken),
		errors.Is(err, service.ErrEmailTaken):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, service.ErrPermissionDenied.Error())
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrSelfModificationForbidden):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrUploadFailed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, service.ErrStore):
		log.Printf("Store error: %v", err)
		return status.Error(codes.Unavailable, "service temporarily unavailable, please try again")
	case errors.Is(err, service.ErrRegistrationFailed):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		log.Printf("Unhandled error: %v", err)
		return status.Error(codes.Internal, "internal error")
	}
}
