package cli

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/mathewtroy/candle/api"
	"github.com/mathewtroy/candle/config"
	"github.com/mathewtroy/candle/handler"
	"github.com/mathewtroy/candle/identity/local"
	"github.com/mathewtroy/candle/interceptor"
	natsClient "github.com/mathewtroy/candle/nats"
	"github.com/mathewtroy/candle/pkg/jwt"
	"github.com/mathewtroy/candle/publisher"
	"github.com/mathewtroy/candle/repository"
	"github.com/mathewtroy/candle/service"
	"github.com/mathewtroy/candle/session"
	"github.com/mathewtroy/candle/subscriber"
	"github.com/mathewtroy/candle/upload"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the candle gRPC server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	dbConn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	store, err := openStore(ctx, cfg, dbConn, true)
	if err != nil {
		return err
	}
	defer store.Close()

	redisClient, err := session.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	nats, err := natsClient.NewClient(natsClient.Config{
		URL:           cfg.NATS.URL,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		ClientID:      cfg.NATS.ClientID,
	})
	if err != nil {
		return err
	}
	defer nats.Close()
	log.Println("NATS client initialized successfully")

	eventPublisher := publisher.NewEventPublisher(nats)

	provider := local.NewProvider(
		local.NewAccountRepository(dbConn.DB),
		session.NewRedisStore(redisClient),
		jwt.NewManager(cfg.JWTSecret),
		cfg.SessionTTL,
	)

	identities := repository.NewIdentityRepository(store)
	posts := repository.NewPostRepository(store)
	likes := repository.NewLikeRepository(store)

	images := service.NewImagePipeline(
		upload.NewCloudinaryClient(cfg.Upload.BaseURL, cfg.Upload.CloudName, cfg.Upload.Preset, cfg.Upload.Timeout),
		upload.CompressOptions{MaxBytes: cfg.Avatar.MaxBytes, MaxDimension: cfg.Avatar.MaxDimension},
		cfg.Avatar.MaxUploadBytes,
	)

	search := service.NewSearch(identities)
	sessions := service.NewSessions(provider, identities)
	postSvc := service.NewPostService(identities, posts, likes, eventPublisher)
	reconciler := service.NewReconciler(posts, likes)

	candleHandler := handler.NewCandleHandler(handler.Services{
		Registrar:  service.NewRegistrar(identities, provider, images, eventPublisher),
		Sessions:   sessions,
		Search:     search,
		Avatars:    service.NewAvatarPropagator(identities, posts, provider, images, eventPublisher),
		Feeds:      service.NewFeedSubscriber(search, posts, likes),
		Likes:      service.NewLikeToggler(identities, posts, likes, eventPublisher),
		Posts:      postSvc,
		Moderator:  service.NewModerator(identities, posts, postSvc, provider, eventPublisher),
		Reconciler: reconciler,
	})

	driftSubscriber := subscriber.NewDriftSubscriber(ctx, nats, reconciler)
	if err := driftSubscriber.Start(); err != nil {
		log.Printf("Failed to start like drift subscriber: %v", err)
	} else {
		defer driftSubscriber.Stop()
	}

	go reconciler.Run(ctx, cfg.ReconcileInterval)

	authInterceptor := interceptor.NewAuthInterceptor(sessions, handler.PublicMethods())

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(authInterceptor.Unary()),
		grpc.StreamInterceptor(authInterceptor.Stream()),
	)
	api.RegisterCandleServer(grpcServer, candleHandler)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.GRPCPort, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Candle gRPC server listening on port %s", cfg.GRPCPort)
		serveErr <- grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
		candleHandler.Stop(grpcServer, shutdownTimeout)
		log.Println("Server stopped")
		return nil
	case err := <-serveErr:
		return fmt.Errorf("failed to serve: %w", err)
	}
}
