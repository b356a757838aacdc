// Package webp re-encodes downloaded images as WebP with libvips.
package webp

import (
	"fmt"

	"github.com/h2non/bimg"
)

const (
	defaultMaxWidth = 1024
	defaultQuality  = 82
)

// Optimizer shrinks images wider than MaxWidth and converts them to WebP.
type Optimizer struct {
	MaxWidth int
	Quality  int
}

func NewOptimizer() *Optimizer {
	return &Optimizer{
		MaxWidth: defaultMaxWidth,
		Quality:  defaultQuality,
	}
}

// Optimize returns the WebP encoding of buffer.
func (o *Optimizer) Optimize(buffer []byte) ([]byte, error) {
	img := bimg.NewImage(buffer)
	size, err := img.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to get image dimensions: %v", err)
	}

	opts := bimg.Options{
		Type:    bimg.WEBP,
		Quality: o.Quality,
	}
	if o.MaxWidth > 0 && size.Width > o.MaxWidth {
		opts.Width = o.MaxWidth
		opts.Height = size.Height * o.MaxWidth / size.Width
	}

	out, err := img.Process(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %v", err)
	}
	return out, nil
}

// ContentType is the MIME type of Optimize's output.
func (o *Optimizer) ContentType() string {
	return "image/webp"
}
