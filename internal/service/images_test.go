package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestMIMEFromPath(t *testing.T) {
	cases := map[string]string{
		"a.png":       "image/png",
		"a.JPG":       "image/jpeg",
		"a.jpeg":      "image/jpeg",
		"a.gif":       "image/gif",
		"a.webp":      "image/webp",
		"a.bmp":       "image/png",
		"noextension": "image/png",
	}
	for path, want := range cases {
		if got := MIMEFromPath(path); got != want {
			t.Errorf("MIMEFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestImageService_LocalAndAbsolute(t *testing.T) {
	root := t.TempDir()
	data := testPNG(t, 4, 4)
	if err := os.MkdirAll(filepath.Join(root, "output"), 0o755); err != nil {
		t.Fatal(err)
	}
	abs := filepath.Join(root, "output", "cover.png")
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewImageService(root, 0, nil, zap.NewNop())
	img, err := svc.Load(context.Background(), "output/cover.png", 0)
	if err != nil {
		t.Fatalf("relative Load: %v", err)
	}
	if !bytes.Equal(img.Data, data) || img.MIME != "image/png" {
		t.Errorf("relative image mismatch, mime %s", img.MIME)
	}

	if _, err := svc.Load(context.Background(), abs, 0); err != nil {
		t.Errorf("absolute Load: %v", err)
	}

	if _, err := svc.Load(context.Background(), "output/missing.png", 0); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestImageService_Resize(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "wide.png"), testPNG(t, 40, 20), 0o644); err != nil {
		t.Fatal(err)
	}
	svc := NewImageService(root, 0, nil, zap.NewNop())

	img, err := svc.Load(context.Background(), "wide.png", 10)
	if err != nil {
		t.Fatal(err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("decode resized: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Errorf("resized to %dx%d, want 10x5", b.Dx(), b.Dy())
	}

	img, err = svc.Load(context.Background(), "wide.png", 100)
	if err != nil {
		t.Fatal(err)
	}
	decoded, _, _ = image.Decode(bytes.NewReader(img.Data))
	if decoded.Bounds().Dx() != 40 {
		t.Errorf("narrower request should keep original width, got %d", decoded.Bounds().Dx())
	}
}

func TestImageService_S3(t *testing.T) {
	data := testPNG(t, 2, 2)
	svc := NewImageService(t.TempDir(), 0, &fakeObjects{objects: map[string][]byte{"veille/posts/a.png": data}}, zap.NewNop())

	img, err := svc.Load(context.Background(), "s3://veille/posts/a.png", 0)
	if err != nil {
		t.Fatalf("s3 Load: %v", err)
	}
	if !bytes.Equal(img.Data, data) {
		t.Error("s3 bytes mismatch")
	}
	if _, err := svc.Load(context.Background(), "s3://veille/posts/b.png", 0); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing object err = %v, want ErrNotFound", err)
	}

	noS3 := NewImageService(t.TempDir(), 0, nil, zap.NewNop())
	if _, err := noS3.Load(context.Background(), "s3://veille/posts/a.png", 0); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unconfigured s3 err = %v, want ErrNotFound", err)
	}
}
