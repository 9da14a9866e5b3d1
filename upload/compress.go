package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var ErrUndecodable = errors.New("upload: image cannot be decoded")

// CompressOptions bound the compressed output.
type CompressOptions struct {
	MaxBytes     int
	MaxDimension int
}

var qualities = []int{85, 75, 65, 55, 45, 35}

// Compress decodes a JPEG, PNG, GIF or WebP image, scales it so neither
// side exceeds MaxDimension, and re-encodes it as JPEG no larger than
// MaxBytes. Transparent areas are flattened onto white.
func Compress(data []byte, opts CompressOptions) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), opts.MaxDimension)

	for w > 0 && h > 0 {
		canvas := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, src.Bounds(), draw.Over, nil)

		for _, q := range qualities {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: q}); err != nil {
				return nil, fmt.Errorf("failed to encode image: %w", err)
			}
			if opts.MaxBytes <= 0 || buf.Len() <= opts.MaxBytes {
				return buf.Bytes(), nil
			}
		}

		w, h = w*4/5, h*4/5
	}

	return nil, fmt.Errorf("image cannot be compressed below %d bytes", opts.MaxBytes)
}

// fit scales w x h down so the longer side is at most limit, keeping the
// aspect ratio.
func fit(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
