// Package media stores uploaded photos. Every upload is decoded and written
// back as a JPEG at quality 85, so the stored file never carries the
// client's original bytes or metadata.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	Quality  = 85
	MaxBytes = 10 << 20
	MaxSide  = 1600
	// decoded size budget; a few hundred KB of PNG can declare far more
	MaxPixels = 40_000_000
)

var (
	ErrInvalidImage  = errors.New("file is not a supported image")
	ErrTooLarge      = errors.New("image exceeds 10 MB")
	ErrTooManyPixels = errors.New("image exceeds 40 megapixels")
)

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save recompresses the image read from r into <dir>/<folder>/<uuid>.jpg and
// returns the path relative to dir.
func (s *Store) Save(folder string, r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(raw) > MaxBytes {
		return "", ErrTooLarge
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", ErrInvalidImage
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", ErrInvalidImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return "", ErrTooManyPixels
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", ErrInvalidImage
	}
	img = fit(img, MaxSide)

	if err := os.MkdirAll(filepath.Join(s.dir, folder), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	rel := filepath.ToSlash(filepath.Join(folder, uuid.NewString()+".jpg"))
	f, err := os.Create(filepath.Join(s.dir, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: Quality}); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return rel, nil
}

// Remove deletes a previously saved file. Missing files are ignored.
func (s *Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(rel)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) Dir() string { return s.dir }

// fit scales img down so that its longest side is at most max.
func fit(img image.Image, max int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return img
	}
	if w >= h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
