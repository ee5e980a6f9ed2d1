// Package ocr reads ticket photos: it binarizes the image on its red channel,
// hands it to a text recognition provider and extracts candidate rows from
// the recognized lines.
package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultThreshold is the red-channel cut between ink and paper
const DefaultThreshold uint8 = 150

// Decode reads a PNG, JPEG, GIF or WebP image
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Preprocess keeps the red channel and thresholds it: pixels brighter than
// threshold become white, the rest black. Red ink on TOTO slips drops out
// while the printed numbers stay.
func Preprocess(img image.Image, threshold uint8) *image.Gray {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r := rgba.RGBAAt(x, y).R
			if r > threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

// Upscale enlarges small photos so the recognizer sees glyphs of a usable size
func Upscale(img image.Image, minWidth int) image.Image {
	b := img.Bounds()
	if minWidth <= 0 || b.Dx() >= minWidth || b.Dx() == 0 {
		return img
	}

	h := b.Dy() * minWidth / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, minWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodePNG serializes a preprocessed image for providers that take bytes
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
