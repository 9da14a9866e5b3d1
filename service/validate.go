package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mathewtroy/candle/upload"
)

const (
	MaxHandleLength = 50
	MaxEmailLength  = 70
)

var (
	unsafeChars   = regexp.MustCompile("[<>/\"'`]")
	handlePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Sanitize trims s and strips characters that are unsafe in markup.
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(strings.TrimSpace(s), "")
}

// FoldHandle returns the case-insensitive form handles are unique by.
func FoldHandle(handle string) string {
	return cases.Lower(language.Und).String(handle)
}

// NormalizeHandle sanitizes and validates a handle.
func NormalizeHandle(raw string) (string, error) {
	handle := Sanitize(raw)
	if len(handle) == 0 || len(handle) > MaxHandleLength || !handlePattern.MatchString(handle) {
		return "", fmt.Errorf("%w: handle must be 1-%d letters or digits", ErrInvalidInput, MaxHandleLength)
	}
	return handle, nil
}

// NormalizeEmail sanitizes and validates an email address.
func NormalizeEmail(raw string) (string, error) {
	email := Sanitize(raw)
	if len(email) == 0 || len(email) > MaxEmailLength || !emailPattern.MatchString(email) {
		return "", fmt.Errorf("%w: please enter a valid email", ErrInvalidInput)
	}
	return email, nil
}

// ImageFile is an image as received from a client.
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImagePipeline validates, compresses and uploads avatar images.
type ImagePipeline struct {
	uploader  upload.Uploader
	compress  upload.CompressOptions
	maxUpload int
}

func NewImagePipeline(uploader upload.Uploader, compress upload.CompressOptions, maxUploadBytes int) *ImagePipeline {
	return &ImagePipeline{
		uploader:  uploader,
		compress:  compress,
		maxUpload: maxUploadBytes,
	}
}

// Validate checks the declared type and size of img.
func (p *ImagePipeline) Validate(img ImageFile) error {
	if !allowedImageTypes[strings.ToLower(img.ContentType)] {
		return fmt.Errorf("%w: only JPG, PNG, WebP or GIF images are allowed", ErrInvalidImage)
	}
	if len(img.Data) == 0 {
		return fmt.Errorf("%w: image is empty", ErrInvalidImage)
	}
	if len(img.Data) > p.maxUpload {
		return fmt.Errorf("%w: image must be at most %d bytes", ErrInvalidImage, p.maxUpload)
	}
	return nil
}

// Process validates, compresses and uploads img and returns its URL.
func (p *ImagePipeline) Process(ctx context.Context, img ImageFile) (string, error) {
	if err := p.Validate(img); err != nil {
		return "", err
	}

	compressed, err := upload.Compress(img.Data, p.compress)
	if errors.Is(err, upload.ErrUndecodable) {
		return "", fmt.Errorf("%w: file is not a readable image", ErrInvalidImage)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	name := strings.TrimSuffix(img.Name, pathExt(img.Name)) + ".jpg"
	url, err := p.uploader.Upload(ctx, compressed, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return url, nil
}

func pathExt(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[i:]
	}
	return ""
}
