package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

const maxImageBytes = 25 * 1024 * 1024

var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// MIMEFromPath infers the image content type from the file extension.
func MIMEFromPath(path string) string {
	if mime, ok := imageMIMETypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "image/png"
}

// ObjectGetter is the part of the S3 client the image proxy needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Image struct {
	Data []byte
	MIME string
}

// ImageService serves post images from the project directory, absolute paths
// or s3://bucket/key references.
type ImageService struct {
	root     string
	maxWidth int
	objects  ObjectGetter
	logger   *zap.Logger
}

func NewImageService(root string, maxWidth int, objects ObjectGetter, logger *zap.Logger) *ImageService {
	return &ImageService{
		root:     root,
		maxWidth: maxWidth,
		objects:  objects,
		logger:   logger,
	}
}

// NewS3Client builds the client used for s3:// image references.
func NewS3Client(ctx context.Context, cfg config.ImagesConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Load reads the image at path. A positive width downsizes it, keeping the
// aspect ratio; images already narrower are returned untouched.
func (s *ImageService) Load(ctx context.Context, path string, width int) (*Image, error) {
	if path == "" {
		return nil, fmt.Errorf("empty image path: %w", models.ErrNotFound)
	}

	var (
		data []byte
		err  error
	)
	if bucket, key, ok := parseS3Path(path); ok {
		data, err = s.readObject(ctx, bucket, key)
	} else {
		data, err = s.readFile(path)
	}
	if err != nil {
		return nil, err
	}

	img := &Image{Data: data, MIME: MIMEFromPath(path)}
	if width <= 0 {
		return img, nil
	}
	if s.maxWidth > 0 && width > s.maxWidth {
		width = s.maxWidth
	}

	resized, err := resizeImage(data, path, width)
	if err != nil {
		s.logger.Warn("Serving original image, resize failed", zap.String("path", path), zap.Error(err))
		return img, nil
	}
	img.Data = resized
	return img, nil
}

func (s *ImageService) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

func (s *ImageService) readFile(path string) ([]byte, error) {
	full := s.resolve(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("image %s: %v: %w", full, err, models.ErrNotFound)
	}
	return data, nil
}

func (s *ImageService) readObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("image s3://%s/%s: s3 is not configured: %w", bucket, key, models.ErrNotFound)
	}
	out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("image s3://%s/%s: %v: %w", bucket, key, err, models.ErrNotFound)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read s3 object: %w", err)
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("image too large (>%d bytes)", maxImageBytes)
	}
	return body, nil
}

func parseS3Path(path string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(path, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func resizeImage(data []byte, path string, width int) ([]byte, error) {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if src.Bounds().Dx() <= width {
		return data, nil
	}
	if src.Bounds().Dy() == 0 {
		return nil, errors.New("invalid image dimensions")
	}

	dst := imaging.Resize(src, width, 0, imaging.Lanczos)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, dst, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
