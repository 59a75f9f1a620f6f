package blob

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestSquareImageCropsCenterAndScales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 100))
	draw.Draw(src, src.Bounds(), &image.Uniform{C: color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
	draw.Draw(src, image.Rect(100, 0, 200, 100), &image.Uniform{C: color.RGBA{B: 255, A: 255}}, image.Point{}, draw.Src)

	img, err := DecodeImage(encodePNG(t, src))
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}

	square := SquareImage(img, 64)
	if square.Bounds().Dx() != 64 || square.Bounds().Dy() != 64 {
		t.Fatalf("dimensions = %dx%d, want 64x64", square.Bounds().Dx(), square.Bounds().Dy())
	}

	r, g, b, _ := square.At(32, 32).RGBA()
	if r != 0 || g != 0 || b>>8 != 255 {
		t.Fatalf("center pixel = (%d,%d,%d), want blue", r>>8, g>>8, b>>8)
	}
}

func TestSquareImageFlattensTransparencyOnWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 10, 10))

	square := SquareImage(src, 8)
	r, g, b, a := square.At(4, 4).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 || a>>8 != 255 {
		t.Fatalf("pixel = (%d,%d,%d,%d), want opaque white", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	if _, err := DecodeImage([]byte("not an image")); err == nil {
		t.Fatal("DecodeImage() error = nil, want error")
	}
}

func TestSaveImageWritesPNG(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	svc := NewService(store)

	key, err := svc.SaveImage(context.Background(), KindProfilePicture, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("SaveImage() error = %v", err)
	}
	if !strings.HasPrefix(key, "profile_pictures/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("key = %q", key)
	}

	f, err := store.Open(key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if _, format, err := image.Decode(bytes.NewReader(data)); err != nil || format != "png" {
		t.Fatalf("stored format = %q, %v; want png", format, err)
	}

	if err := svc.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete() twice error = %v", err)
	}
}

func TestSaveImageRejectsUnknownKind(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	_, err = NewService(store).SaveImage(context.Background(), Kind("avatars"), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("SaveImage() error = %v, want ErrInvalidKind", err)
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	for _, key := range []string{"../x.png", "/etc/passwd", "."} {
		if err := store.Put(context.Background(), key, "image/png", nil); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Put(%q) error = %v, want ErrInvalidPath", key, err)
		}
	}
}
