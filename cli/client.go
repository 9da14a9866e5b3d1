package cli

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mathewtroy/candle/api"
)

// dial connects to the server at opts.Addr and returns a client plus a
// context carrying the session token, if any.
func dial(ctx context.Context, opts *RootOptions) (*api.Client, context.Context, func(), error) {
	conn, err := grpc.NewClient(opts.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to %s: %w", opts.Addr, err)
	}
	closeConn := func() { _ = conn.Close() }
	return api.NewClient(conn), api.WithToken(ctx, opts.Token), closeConn, nil
}

func requireToken(opts *RootOptions) error {
	if opts.Token == "" {
		return fmt.Errorf("not signed in: pass --token or set CANDLE_TOKEN (see 'candle login')")
	}
	return nil
}

// readImage loads an image file and detects its content type.
func readImage(path string) (*api.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &api.Image{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
