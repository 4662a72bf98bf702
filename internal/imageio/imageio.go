// Package imageio converts float RGBA images read back from the device
// into 8-bit images and writes them as WebP.
package imageio

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
)

// ToNRGBA converts tightly packed linear RGBA floats into an opaque 8-bit
// image. Values are clamped to [0, 1]; alpha is forced to 255.
func ToNRGBA(data []float32, width, height int) (*image.NRGBA, error) {
	if len(data) != width*height*4 {
		return nil, fmt.Errorf("image data holds %d floats, want %d", len(data), width*height*4)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		for c := 0; c < 3; c++ {
			img.Pix[4*i+c] = to8(data[4*i+c])
		}
		img.Pix[4*i+3] = 255
	}
	return img, nil
}

func to8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Scale resizes img so its width is width, keeping the aspect ratio.
func Scale(img image.Image, width int) *image.NRGBA {
	b := img.Bounds()
	height := max(1, b.Dy()*width/max(1, b.Dx()))
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// WriteWebP encodes img losslessly to path, creating parent directories.
func WriteWebP(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		return fmt.Errorf("webp encode: %w", err)
	}
	return f.Close()
}

// Save converts float data and writes it to path, upscaling to width
// when width is larger than the source.
func Save(path string, data []float32, w, h, width int) error {
	img, err := ToNRGBA(data, w, h)
	if err != nil {
		return err
	}
	if width > w {
		return WriteWebP(path, Scale(img, width))
	}
	return WriteWebP(path, img)
}
