// Package asset provides the offline placeholder image served when a
// camera feed cannot be relayed.
package asset

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	_ "golang.org/x/image/webp" // register WebP decoder
)

//go:embed offline.png
var defaultPlaceholder []byte

// ErrUnsupported is returned for data that is not a decodable image.
var ErrUnsupported = errors.New("unsupported image format")

// Placeholder is a validated image held in memory.
type Placeholder struct {
	data        []byte
	ContentType string
	Width       int
	Height      int
}

// Bytes returns the image bytes. Callers must not modify the slice.
func (p *Placeholder) Bytes() []byte { return p.data }

// Len returns the image size in bytes.
func (p *Placeholder) Len() int { return len(p.data) }

// Default returns the embedded placeholder.
func Default() *Placeholder {
	p, err := Decode(defaultPlaceholder)
	if err != nil {
		panic(fmt.Sprintf("embedded placeholder is invalid: %v", err))
	}
	return p
}

// Load reads a placeholder from path, or returns the embedded default when
// path is empty.
func Load(path string) (*Placeholder, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("reading placeholder: %w", err)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("placeholder %s: %w", path, err)
	}
	return p, nil
}

// Decode validates data by decoding its image header.
func Decode(data []byte) (*Placeholder, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	ct, ok := contentTypes[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}
	return &Placeholder{data: data, ContentType: ct, Width: cfg.Width, Height: cfg.Height}, nil
}

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}
