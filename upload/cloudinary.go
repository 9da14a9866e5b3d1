// Package upload stores avatar images with an unsigned-preset image host
// and prepares them for upload.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Uploader stores an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// CloudinaryClient posts images to an unsigned upload preset. Unsigned
// uploads need no API key or secret.
type CloudinaryClient struct {
	cld    *cloudinary.Cloudinary
	preset string
	err    error
}

// NewCloudinaryClient targets cloudName under baseURL, the upload API
// prefix (https://api.cloudinary.com in production).
func NewCloudinaryClient(baseURL, cloudName, preset string, timeout time.Duration) *CloudinaryClient {
	c := &CloudinaryClient{preset: preset}
	if cloudName == "" || preset == "" {
		c.err = fmt.Errorf("upload destination is not configured")
		return c
	}

	cld, err := cloudinary.NewFromParams(cloudName, "", "")
	if err != nil {
		c.err = fmt.Errorf("failed to configure uploader: %w", err)
		return c
	}
	if baseURL != "" {
		cld.Config.API.UploadPrefix = strings.TrimRight(baseURL, "/")
	}
	cld.Upload.Client = http.Client{Timeout: timeout}
	c.cld = cld
	return c
}

func (c *CloudinaryClient) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if c.err != nil {
		return "", c.err
	}

	res, err := c.cld.Upload.UnsignedUpload(ctx, bytes.NewReader(data), c.preset, uploader.UploadParams{})
	if err != nil {
		return "", fmt.Errorf("upload of %s failed: %w", filename, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("upload of %s rejected: %s", filename, res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", fmt.Errorf("upload of %s returned no url", filename)
	}
	return res.SecureURL, nil
}
