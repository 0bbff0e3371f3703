package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestEncodePNG(t *testing.T) {
	img := createStepImage(32, 16, 8)

	result, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}

	if result.Width != 32 || result.Height != 16 {
		t.Errorf("dimensions: got %dx%d, want 32x16", result.Width, result.Height)
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	decoded, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	back, err := png.Decode(bytes.NewReader(decoded))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}
	if back.Bounds().Dx() != 32 || back.Bounds().Dy() != 16 {
		t.Errorf("decoded dimensions: got %v", back.Bounds())
	}
}

func TestDownscale(t *testing.T) {
	img := createUniformImage(1920, 1080, color.RGBA{10, 20, 30, 255})

	tests := []struct {
		name          string
		maxWidth      int
		wantW, wantH  int
		wantUnchanged bool
	}{
		{"halve", 960, 960, 540, false},
		{"to 1280", 1280, 1280, 720, false},
		{"already narrow", 4000, 1920, 1080, true},
		{"exact width", 1920, 1920, 1080, true},
		{"disabled", 0, 1920, 1080, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downscale(img, tt.maxWidth)
			if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
				t.Errorf("size: got %v, want %dx%d", got.Bounds(), tt.wantW, tt.wantH)
			}
			if tt.wantUnchanged && got != image.Image(img) {
				t.Error("expected the input to be returned unchanged")
			}
		})
	}
}

func TestToRGBA(t *testing.T) {
	rgba := createUniformImage(8, 8, color.RGBA{1, 2, 3, 255})
	if got := ToRGBA(rgba); got != rgba {
		t.Error("zero-anchored RGBA should be returned as is")
	}

	sub := rgba.SubImage(image.Rect(2, 2, 6, 6))
	got := ToRGBA(sub)
	if got.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Errorf("bounds: got %v, want (0,0)-(4,4)", got.Bounds())
	}
	if c := got.RGBAAt(0, 0); c != (color.RGBA{1, 2, 3, 255}) {
		t.Errorf("pixel: got %v", c)
	}

	gray := image.NewGray(image.Rect(0, 0, 3, 3))
	gray.SetGray(1, 1, color.Gray{Y: 200})
	if c := ToRGBA(gray).RGBAAt(1, 1); c != (color.RGBA{200, 200, 200, 255}) {
		t.Errorf("gray pixel: got %v", c)
	}
}
